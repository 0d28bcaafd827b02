package download

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"

	"github.com/digikart/digikart/internal/domain/order"
	"github.com/digikart/digikart/internal/domain/product"
)

var (
	// ErrNotVerified is the single opaque outcome for every resolution or
	// verification failure: it never reveals whether the order exists, the
	// product exists, or ownership failed.
	ErrNotVerified = errors.New("could not verify download")
	// ErrFileMissing is returned when the claim is valid but the file is
	// absent from the storage backend.
	ErrFileMissing = errors.New("file missing on server")
)

// File is a streamable purchased file.
type File struct {
	Name    string
	Size    int64
	Content io.ReadCloser
}

// Service mints download claims for paid orders and streams the claimed
// files.
type Service struct {
	orders  order.Repository
	catalog product.Repository
	signer  *Signer
	files   FileStore
}

// NewService creates a download Service.
func NewService(orders order.Repository, catalog product.Repository, signer *Signer, files FileStore) *Service {
	return &Service{orders: orders, catalog: catalog, signer: signer, files: files}
}

// IssueToken resolves the order (by internal id or order number) and the
// purchased product (by exact id or case-insensitive partial name match),
// requires the order to be paid, and mints a signed claim. The option
// defaults to the first purchased option of the matched product when
// unspecified. Every failure is ErrNotVerified.
func (s *Service) IssueToken(ctx context.Context, orderRef, productRef, optionRef string) (string, error) {
	o, err := s.resolveOrder(ctx, orderRef)
	if err != nil {
		return "", ErrNotVerified
	}
	if o.Status != order.StatusPaid {
		return "", ErrNotVerified
	}

	item := resolveItem(o.Items, productRef, optionRef)
	if item == nil {
		return "", ErrNotVerified
	}

	token, err := s.signer.Sign(o.ID, item.ProductID, item.OptionID)
	if err != nil {
		return "", ErrNotVerified
	}
	return token, nil
}

// Consume verifies a claim, re-resolves the option's stored file location,
// confirms it exists on the storage backend, and returns a stream. Tokens
// remain valid for every request within their expiry window.
func (s *Service) Consume(ctx context.Context, token string) (*File, error) {
	claims, err := s.signer.Verify(token)
	if err != nil {
		return nil, ErrNotVerified
	}

	p, err := s.catalog.GetByID(ctx, claims.ProductID)
	if err != nil {
		return nil, ErrNotVerified
	}
	opt := p.Option(claims.OptionID)
	if opt == nil || opt.FilePath == "" {
		return nil, ErrNotVerified
	}

	ok, err := s.files.Exists(ctx, opt.FilePath)
	if err != nil {
		return nil, errors.Wrap(err, "check file")
	}
	if !ok {
		return nil, ErrFileMissing
	}

	content, size, err := s.files.Open(ctx, opt.FilePath)
	if err != nil {
		return nil, ErrFileMissing
	}

	return &File{
		Name:    downloadName(p.Name, opt.Name, opt.FilePath),
		Size:    size,
		Content: content,
	}, nil
}

func (s *Service) resolveOrder(ctx context.Context, ref string) (*order.Order, error) {
	o, err := s.orders.Get(ctx, ref)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, order.ErrNotFound) {
		return nil, err
	}
	return s.orders.GetByNumber(ctx, ref)
}

// resolveItem finds the purchased line matching the product reference:
// exact product id first, then case-insensitive partial name match. The
// option defaults to the matched line's option when optionRef is empty.
func resolveItem(items []order.Item, productRef, optionRef string) *order.Item {
	match := func(it *order.Item) bool {
		if it.ProductID == productRef {
			return true
		}
		return productRef != "" &&
			strings.Contains(strings.ToLower(it.Name), strings.ToLower(productRef))
	}

	for i := range items {
		it := &items[i]
		if !match(it) {
			continue
		}
		if optionRef == "" || it.OptionID == optionRef {
			return it
		}
	}
	return nil
}

// downloadName derives the content-disposition filename from the product and
// option names, keeping the stored file's extension.
func downloadName(productName, optionName, path string) string {
	base := strings.TrimSpace(productName + " " + optionName)
	base = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '"', '\'':
			return '-'
		default:
			return r
		}
	}, base)
	return base + filepath.Ext(path)
}
