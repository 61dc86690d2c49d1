package voucher

import (
	"context"
	"errors"
	"fmt"

	"admin-chat/internal/tree"
)

const vouchersRoot = "vouchers"

var ErrNotFound = errors.New("voucher not found")

type Repository struct {
	store tree.Store
}

func NewRepository(store tree.Store) *Repository {
	return &Repository{store: store}
}

// List returns every voucher ordered by code. Records that don't decode are
// skipped.
func (r *Repository) List(ctx context.Context) ([]Voucher, error) {
	snap, err := r.store.Get(ctx, vouchersRoot)
	if err != nil {
		return nil, fmt.Errorf("list vouchers: %w", err)
	}
	out := make([]Voucher, 0)
	for _, child := range snap.Children() {
		var v Voucher
		if err := child.Decode(&v); err != nil {
			continue
		}
		v.Code = child.Key()
		out = append(out, v)
	}
	return out, nil
}

func (r *Repository) Get(ctx context.Context, code string) (*Voucher, error) {
	if code == "" {
		return nil, ErrNotFound
	}
	snap, err := r.store.Get(ctx, tree.Join(vouchersRoot, code))
	if err != nil {
		return nil, err
	}
	if !snap.Exists() {
		return nil, ErrNotFound
	}
	var v Voucher
	if err := snap.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode voucher %s: %w", code, err)
	}
	v.Code = code
	return &v, nil
}

// Put creates or replaces the voucher under its code.
func (r *Repository) Put(ctx context.Context, v Voucher) error {
	if err := v.Validate(); err != nil {
		return err
	}
	return r.store.Set(ctx, tree.Join(vouchersRoot, v.Code), v)
}

func (r *Repository) Delete(ctx context.Context, code string) error {
	keys, err := r.store.Keys(ctx, vouchersRoot)
	if err != nil {
		return err
	}
	found := false
	for _, k := range keys {
		if k == code {
			found = true
			break
		}
	}
	if !found {
		return ErrNotFound
	}
	return r.store.Remove(ctx, tree.Join(vouchersRoot, code))
}
