package health

import (
	"context"
	"errors"

	"github.com/MrWong99/frontdesk/pkg/provider/llm"
)

// WritableLedger is implemented by ledgers that can test their backing file.
type WritableLedger interface {
	CheckWritable() error
}

// LedgerCheck reports whether the ledger file can be written.
func LedgerCheck(l WritableLedger) Checker {
	return Checker{
		Name: "ledger",
		Check: func(context.Context) error {
			if l == nil {
				return errors.New("no ledger configured")
			}
			return l.CheckWritable()
		},
	}
}

// ProviderCheck reports whether a model provider has been configured.
func ProviderCheck(p llm.Provider) Checker {
	return Checker{
		Name: "llm",
		Check: func(context.Context) error {
			if p == nil {
				return errors.New("no llm provider configured")
			}
			return nil
		},
	}
}
