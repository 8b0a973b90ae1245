// Package wallet derives and holds the ed25519 account keys used to sign
// transactions. The rest of the pipeline talks to it only through the Wallet
// interface, so a hardware or remote signer can be swapped in.
package wallet

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/jmerrifield20/disco/pkg/address"
	"github.com/jmerrifield20/disco/pkg/discoerrors"
)

// ErrUnknownAccount is returned when the wallet holds no key for an address.
var ErrUnknownAccount = errors.New("account not held by wallet")

const hkdfSalt = "disco-wallet-v1"

// Account is a public view of a key held by a wallet.
type Account struct {
	Name      string            `json:"name,omitempty"`
	Address   string            `json:"address"`
	PublicKey ed25519.PublicKey `json:"public_key"`
}

// Wallet exposes the accounts it holds and signs arbitrary bytes for them.
// Sign must be a pure function of (msg, key).
type Wallet interface {
	Accounts() ([]Account, error)
	Sign(msg []byte, addr string) ([]byte, error)
}

// DeriveAccounts returns the first n accounts derived from secret without
// keeping any private key material around.
func DeriveAccounts(secret string, n int) ([]Account, error) {
	kr, err := FromSecret(secret, n)
	if err != nil {
		return nil, err
	}
	return kr.Accounts()
}

// Keyring is an in-memory Wallet. It is safe for concurrent use.
type Keyring struct {
	mu    sync.RWMutex
	keys  map[string]ed25519.PrivateKey // address -> key
	names map[string]string             // name -> address
	order []string                      // addresses in insertion order
}

// NewKeyring returns an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{
		keys:  make(map[string]ed25519.PrivateKey),
		names: make(map[string]string),
	}
}

// FromSecret returns a keyring holding the first n accounts derived from
// secret. Derivation is deterministic: the same secret always yields the
// same accounts in the same order.
func FromSecret(secret string, n int) (*Keyring, error) {
	if n <= 0 {
		n = 1
	}
	kr := NewKeyring()
	for i := 0; i < n; i++ {
		priv, err := DeriveKey(secret, i)
		if err != nil {
			return nil, err
		}
		if _, err := kr.Add("", priv); err != nil {
			return nil, err
		}
	}
	return kr, nil
}

// DeriveKey derives account key i from secret using HKDF-SHA256.
func DeriveKey(secret string, i int) (ed25519.PrivateKey, error) {
	if secret == "" {
		return nil, errors.New("empty secret")
	}
	r := hkdf.New(sha256.New, []byte(secret), []byte(hkdfSalt), []byte("disco/account/"+strconv.Itoa(i)))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("derive key %d: %w", i, err)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// Add stores priv under an optional name and returns its account.
func (k *Keyring) Add(name string, priv ed25519.PrivateKey) (Account, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return Account{}, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	pub := priv.Public().(ed25519.PublicKey)
	addr, err := address.FromPublicKey(pub)
	if err != nil {
		return Account{}, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if name != "" {
		if existing, ok := k.names[name]; ok && existing != addr {
			return Account{}, fmt.Errorf("account name %q already in use", name)
		}
		k.names[name] = addr
	}
	if _, ok := k.keys[addr]; !ok {
		k.order = append(k.order, addr)
	}
	k.keys[addr] = priv
	return Account{Name: name, Address: addr, PublicKey: pub}, nil
}

// AddSecret derives the first key of secret and stores it under name.
func (k *Keyring) AddSecret(name, secret string) (Account, error) {
	priv, err := DeriveKey(secret, 0)
	if err != nil {
		return Account{}, fmt.Errorf("account %q: %w", name, err)
	}
	return k.Add(name, priv)
}

// Accounts returns every held account in insertion order.
func (k *Keyring) Accounts() ([]Account, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	byAddr := make(map[string]string, len(k.names))
	for name, addr := range k.names {
		byAddr[addr] = name
	}
	out := make([]Account, 0, len(k.order))
	for _, addr := range k.order {
		out = append(out, Account{
			Name:      byAddr[addr],
			Address:   addr,
			PublicKey: k.keys[addr].Public().(ed25519.PublicKey),
		})
	}
	return out, nil
}

// Names returns the account names held, sorted.
func (k *Keyring) Names() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]string, 0, len(k.names))
	for name := range k.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Lookup resolves an account by name or address.
func (k *Keyring) Lookup(nameOrAddr string) (Account, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	addr := nameOrAddr
	name := ""
	if a, ok := k.names[nameOrAddr]; ok {
		addr, name = a, nameOrAddr
	}
	priv, ok := k.keys[addr]
	if !ok {
		return Account{}, fmt.Errorf("%s: %w", nameOrAddr, ErrUnknownAccount)
	}
	if name == "" {
		for n, a := range k.names {
			if a == addr {
				name = n
				break
			}
		}
	}
	return Account{Name: name, Address: addr, PublicKey: priv.Public().(ed25519.PublicKey)}, nil
}

// Sign signs msg with the key for addr.
func (k *Keyring) Sign(msg []byte, addr string) ([]byte, error) {
	k.mu.RLock()
	priv, ok := k.keys[addr]
	k.mu.RUnlock()
	if !ok {
		return nil, &discoerrors.SigningError{Address: addr, Err: ErrUnknownAccount}
	}
	return ed25519.Sign(priv, msg), nil
}

// PublicKey returns the public key for addr, looking it up through w.
func PublicKey(w Wallet, addr string) (ed25519.PublicKey, error) {
	accts, err := w.Accounts()
	if err != nil {
		return nil, &discoerrors.SigningError{Address: addr, Err: err}
	}
	for _, a := range accts {
		if a.Address == addr {
			return a.PublicKey, nil
		}
	}
	return nil, &discoerrors.SigningError{Address: addr, Err: ErrUnknownAccount}
}
