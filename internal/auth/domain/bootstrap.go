package domain

// BootstrapData describes the first administrator created on an empty store.
type BootstrapData struct {
	Username string
	Email    string
	Password string
}
