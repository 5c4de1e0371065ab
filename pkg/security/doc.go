/*
Package security seals platform access tokens at rest.

Account rows hold long-lived tokens for Instagram and Facebook. When
store.encryption_key (or CADENCE_ENCRYPTION_KEY) is set, storage.Open
wraps the ledger in a SealedStore that passes every token through a
TokenSealer on the way in and out.

# Format

	enc:v1:<base64(nonce || AES-256-GCM ciphertext)>

The key is the SHA-256 of the configured passphrase. Each Seal draws a
fresh 12-byte nonce, so sealing the same token twice gives different
values. Values without the prefix are plaintext rows written before
sealing was enabled; Open returns them unchanged and the next
CreateAccount seals them.

Opening a value with the wrong key returns ErrKeyMismatch. Rotating the
passphrase means re-applying accounts or migrating with the old key set
on the source and the new key on the destination.

# Usage

	sealer, err := security.NewTokenSealerFromPassphrase(passphrase)
	if err != nil {
		return err
	}

	stored, err := sealer.Seal(account.AccessToken)
	...
	token, err := sealer.Open(stored)
*/
package security
