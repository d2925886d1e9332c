package restrepo

import (
	"bufio"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/GehirnInc/crypt"
	_ "github.com/GehirnInc/crypt/apr1_crypt" // registers $apr1$
	_ "github.com/GehirnInc/crypt/md5_crypt"
	"golang.org/x/crypto/bcrypt"
)

// AnonymousUser is the user name assigned to every request when
// disable_auth is set.
const AnonymousUser = "anonymous"

// CredentialStore verifies basic-auth credentials against a set of
// user:hash lines loaded once at startup, per spec.md §3.4/§4.3.
type CredentialStore struct {
	disabled bool
	hashes   map[string]string // user -> full hash string, prefix intact
}

// NewCredentialStore builds a disabled store: every Verify call succeeds
// and the caller should treat the request user as AnonymousUser.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{disabled: true}
}

// LoadHtpasswd reads an Apache htpasswd-format file: one "user:hash" line
// per user, "#"-prefixed comments and blank lines skipped. Malformed lines
// are fatal, per spec.md §4.3.
func LoadHtpasswd(path string) (*CredentialStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapErr(KindInternal, "opening htpasswd file", err)
	}
	defer f.Close()

	hashes := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx <= 0 || idx == len(line)-1 {
			return nil, newErr(KindInternal, fmt.Sprintf("malformed htpasswd line %d", lineNo))
		}
		user, hash := line[:idx], line[idx+1:]
		hashes[user] = hash
	}
	if err := scanner.Err(); err != nil {
		return nil, wrapErr(KindInternal, "reading htpasswd file", err)
	}

	return &CredentialStore{hashes: hashes}, nil
}

// Verify checks user/password against the loaded hash. When the store is
// disabled it always reports true. Verification time is made roughly
// independent of whether user is known: an unknown user is checked against
// a fixed dummy hash of the same cost as a real bcrypt entry, so the
// constant-time compare inside each hash family's own Check always runs.
func (c *CredentialStore) Verify(user, password string) bool {
	if c.disabled {
		return true
	}

	hash, ok := c.hashes[user]
	if !ok {
		hash = dummyHash
	}

	valid := checkHash(hash, password)
	return ok && valid
}

// dummyHash is checked for unknown users so Verify always performs a real
// hash-family comparison instead of short-circuiting on user lookup.
const dummyHash = "$2y$10$7EqJtq98hPqEX7fNZaFWoOhi5sFqHyYnUWnzjLVVaJaJJZz2HgKgG"

func checkHash(hash, password string) bool {
	switch {
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil

	case strings.HasPrefix(hash, "$apr1$"), strings.HasPrefix(hash, "$1$"):
		crypter := crypt.NewFromHash(hash)
		return crypter.Verify(hash, []byte(password)) == nil

	case strings.HasPrefix(hash, "{SHA}"):
		sum := sha1.Sum([]byte(password))
		want := hash[len("{SHA}"):]
		got := base64.StdEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1

	default:
		// Traditional crypt(3) DES hashes: 13 characters, no recognizable
		// prefix of their own.
		crypter := crypt.NewFromHash(hash)
		return crypter.Verify(hash, []byte(password)) == nil
	}
}
