package reserve

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dibs-shares/shares-server/pkg/shares/data"
	"github.com/dibs-shares/shares-server/pkg/shares/data/balance"
)

// Ledger moves reserve asset balances persisted through a data.Provider.
//
// Every operation runs in data.Provider.ExecuteInTx and joins the transaction
// carried by ctx when there is one, so transfers made while a market commits
// roll back together with the market's own writes.
type Ledger struct {
	log  *logrus.Entry
	data data.Provider
}

func NewLedger(data data.Provider) *Ledger {
	return &Ledger{
		log:  logrus.StandardLogger().WithField("type", "reserve/ledger"),
		data: data,
	}
}

// Transfer implements Transferer.Transfer
func (l *Ledger) Transfer(ctx context.Context, mint, from, to string, amount uint64) error {
	if len(mint) == 0 || len(from) == 0 || len(to) == 0 {
		return ErrInvalidTransfer
	}
	if from == to {
		return errors.Wrap(ErrInvalidTransfer, "source and destination are the same account")
	}
	if amount == 0 {
		return nil
	}

	return l.data.ExecuteInTx(ctx, sql.LevelDefault, func(ctx context.Context) error {
		// Rows are read in a fixed order so concurrent transfers between the
		// same accounts cannot deadlock
		first, second := from, to
		if second < first {
			first, second = second, first
		}

		records := make(map[string]*balance.Record, 2)
		for _, owner := range []string{first, second} {
			record, err := l.getOrNew(ctx, mint, owner)
			if err != nil {
				return err
			}
			records[owner] = record
		}

		source, destination := records[from], records[to]
		if source.Quarks < amount {
			l.log.WithFields(logrus.Fields{
				"mint":      mint,
				"from":      from,
				"available": source.Quarks,
				"requested": amount,
			}).Debug("insufficient funds for transfer")
			return ErrInsufficientFunds
		}
		if destination.Quarks > math.MaxUint64-amount {
			return errors.Wrap(ErrInvalidTransfer, "balance overflow")
		}

		source.Quarks -= amount
		destination.Quarks += amount

		if err := l.data.SaveBalance(ctx, source); err != nil {
			return errors.Wrap(err, "error saving source balance")
		}
		return errors.Wrap(l.data.SaveBalance(ctx, destination), "error saving destination balance")
	})
}

// GetBalance implements Transferer.GetBalance
func (l *Ledger) GetBalance(ctx context.Context, mint, account string) (uint64, error) {
	record, err := l.data.GetBalance(ctx, mint, account)
	if err == balance.ErrNotFound {
		return 0, nil
	} else if err != nil {
		return 0, errors.Wrap(err, "error getting balance")
	}
	return record.Quarks, nil
}

// Fund credits an account out of thin air. It exists to seed balances for
// local development and tests.
func (l *Ledger) Fund(ctx context.Context, mint, account string, amount uint64) error {
	if len(mint) == 0 || len(account) == 0 {
		return ErrInvalidTransfer
	}

	return l.data.ExecuteInTx(ctx, sql.LevelDefault, func(ctx context.Context) error {
		record, err := l.getOrNew(ctx, mint, account)
		if err != nil {
			return err
		}

		if record.Quarks > math.MaxUint64-amount {
			return errors.Wrap(ErrInvalidTransfer, "balance overflow")
		}
		record.Quarks += amount

		return errors.Wrap(l.data.SaveBalance(ctx, record), "error saving balance")
	})
}

// TopUp funds an account up to at least quarks and returns the amount
// credited. Repeating it with the same target credits nothing.
func (l *Ledger) TopUp(ctx context.Context, mint, account string, quarks uint64) (uint64, error) {
	if len(mint) == 0 || len(account) == 0 {
		return 0, ErrInvalidTransfer
	}

	var credited uint64
	err := l.data.ExecuteInTx(ctx, sql.LevelDefault, func(ctx context.Context) error {
		record, err := l.getOrNew(ctx, mint, account)
		if err != nil {
			return err
		}

		if record.Quarks >= quarks {
			return nil
		}
		credited = quarks - record.Quarks
		record.Quarks = quarks

		return errors.Wrap(l.data.SaveBalance(ctx, record), "error saving balance")
	})
	if err != nil {
		return 0, err
	}
	return credited, nil
}

func (l *Ledger) getOrNew(ctx context.Context, mint, owner string) (*balance.Record, error) {
	record, err := l.data.GetBalance(ctx, mint, owner)
	switch err {
	case nil:
		return record, nil
	case balance.ErrNotFound:
		return &balance.Record{
			Mint:      mint,
			Owner:     owner,
			CreatedAt: time.Now(),
		}, nil
	default:
		return nil, errors.Wrap(err, "error getting balance")
	}
}
