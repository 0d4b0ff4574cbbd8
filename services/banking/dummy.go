package bankingsvc

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/wallet"
)

// DummyProvider issues deterministic account numbers and keeps payments in memory.
// It stands for the bank in development & tests.
type DummyProvider struct {
	secret   string
	bankName string

	mu       sync.RWMutex
	accounts map[string]wallet.VirtualAccount // {accountNumber: account}
	payments []wallet.StatementEntry
}

var _ wallet.AccountProvider = (*DummyProvider)(nil)

func NewDummyProvider(conf *core.Config) *DummyProvider {
	bankName := conf.Banking.BankName
	if bankName == "" {
		bankName = "Dummy Bank"
	}
	return &DummyProvider{
		secret:   conf.Banking.SecretKey,
		bankName: bankName,
		accounts: make(map[string]wallet.VirtualAccount),
	}
}

// AccountNumberFor returns the 10 digits account number issued for `reference`.
func AccountNumberFor(reference string) string {
	sum := sha256.Sum256([]byte(reference))
	return fmt.Sprintf("%010d", binary.BigEndian.Uint64(sum[:8])%10000000000)
}

func (p *DummyProvider) CreateVirtualAccount(_ context.Context, req wallet.VirtualAccountRequest) (wallet.VirtualAccount, error) {
	acct := wallet.VirtualAccount{
		AccountNumber: AccountNumberFor(req.Reference),
		AccountName:   req.Name,
		BankName:      p.bankName,
	}
	p.mu.Lock()
	p.accounts[acct.AccountNumber] = acct
	p.mu.Unlock()
	return acct, nil
}

// AddPayment records a payment into a virtual account.
func (p *DummyProvider) AddPayment(entry wallet.StatementEntry) {
	if entry.PaidAt.IsZero() {
		entry.PaidAt = time.Now().UTC()
	}
	p.mu.Lock()
	p.payments = append(p.payments, entry)
	p.mu.Unlock()
}

func (p *DummyProvider) Statement(_ context.Context, accountNumber string, from, to time.Time) ([]wallet.StatementEntry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := make([]wallet.StatementEntry, 0)
	for _, e := range p.payments {
		if e.AccountNumber != accountNumber || e.PaidAt.Before(from) || e.PaidAt.After(to) {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].PaidAt.Before(entries[j].PaidAt) })
	return entries, nil
}

func (p *DummyProvider) ParseWebhook(payload []byte, signature string) (wallet.StatementEntry, error) {
	return parseWebhook(p.secret, payload, signature)
}
