package pkgcrypto

// The four key-ladder master keys. They are part of the PKG format's
// external contract, not a secret this module owns.
var (
	pspKey = [16]byte{
		0x07, 0xf2, 0xc6, 0x82, 0x90, 0xb5, 0x0d, 0x2c,
		0x33, 0x81, 0x8d, 0x70, 0x9b, 0x60, 0xe6, 0x2b,
	}
	vitaKey2 = [16]byte{
		0xe3, 0x1a, 0x70, 0xc9, 0xce, 0x1d, 0xd7, 0x2b,
		0xf3, 0xc0, 0x62, 0x29, 0x63, 0xf2, 0xec, 0xcb,
	}
	vitaKey3 = [16]byte{
		0x42, 0x3a, 0xca, 0x3a, 0x2b, 0xd5, 0x64, 0x9f,
		0x96, 0x86, 0xab, 0xad, 0x6f, 0xd8, 0x80, 0x1f,
	}
	vitaKey4 = [16]byte{
		0xaf, 0x07, 0xfd, 0x59, 0x65, 0x25, 0x27, 0xba,
		0xf1, 0x33, 0x89, 0x66, 0x8b, 0x17, 0xd9, 0xea,
	}
)

// KeyType identifies which of the four master keys a PKG's header
// selects via the low 3 bits of the byte at offset 0xE7.
type KeyType int

const (
	KeyTypePSP   KeyType = 1
	KeyTypeVita2 KeyType = 2
	KeyTypeVita3 KeyType = 3
	KeyTypeVita4 KeyType = 4
)

// ParseKeyType masks the raw header byte down to the 3-bit key-type
// field.
func ParseKeyType(raw byte) KeyType {
	return KeyType(raw & 7)
}

// DerivePackageKey implements the key ladder: for KeyTypePSP the key
// is the fixed PSP master key; for the three Vita key types the key
// is AES-128-ECB-encrypt(iv) under the corresponding master key.
func DerivePackageKey(kt KeyType, iv [16]byte) ([]byte, error) {
	if kt == KeyTypePSP {
		key := make([]byte, 16)
		copy(key, pspKey[:])
		return key, nil
	}

	var master [16]byte
	switch kt {
	case KeyTypeVita2:
		master = vitaKey2
	case KeyTypeVita3:
		master = vitaKey3
	case KeyTypeVita4:
		master = vitaKey4
	default:
		return nil, ErrInvalidKeyType
	}

	key := make([]byte, 16)
	if err := AESECBEncryptBlock(key, iv[:], master[:]); err != nil {
		return nil, err
	}
	return key, nil
}
