package domain

import "time"

// Credentials is a decrypted login record, held in memory only for the
// duration of a capture pass. At rest the username and password live as
// opaque encrypted blobs in the store; the secret store collaborator is
// the only component that can open them.
type Credentials struct {
	Username string
	Password string

	// LoginURL restricts auto-login to URLs containing this value
	// (case-insensitive substring). Empty = any detected login page.
	LoginURL string

	// Field locators captured by the credential field picker.
	Fields LoginFieldSelection
}

// StoredCredentials is the at-rest shape of a credential record.
// Username and Password are ciphertext blobs produced by the secret
// store; everything else is plaintext metadata.
type StoredCredentials struct {
	// OwnerID is the widget ID or credential group ID this record
	// belongs to.
	OwnerID string `json:"ownerId"`

	UsernameBlob []byte `json:"usernameBlob"`
	PasswordBlob []byte `json:"passwordBlob"`

	LoginURL string              `json:"loginUrl,omitempty"`
	Fields   LoginFieldSelection `json:"fields"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
