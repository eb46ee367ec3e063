package domain

// MFASetup is handed to a user who has not enrolled yet. The secret is not
// stored until the user proves possession with a valid code.
type MFASetup struct {
	Secret          string
	ProvisioningURI string // otpauth:// URL for QR code generation
	ManualEntryKey  string // secret grouped in blocks of four for typing
	Issuer          string
	Account         string
}
