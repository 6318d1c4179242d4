// Package paginate drives token-continuation listings to completion.
package paginate

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/Nao-Mk2/aws-log-browser/internal/model"
)

// PageFunc requests one page. token is nil for the first request.
type PageFunc[T any] func(ctx context.Context, token *string) (model.Page[T], error)

// FetchFailed wraps the failure of any page of an aggregation.
type FetchFailed struct {
	Page int // zero-based index of the failing request
	Err  error
}

func (e *FetchFailed) Error() string {
	return fmt.Sprintf("fetch failed on page %d: %v", e.Page, e.Err)
}

func (e *FetchFailed) Unwrap() error { return e.Err }

// FetchAll calls fetch until a page omits its continuation token and returns
// every item in page-then-item order. On any failure it returns a
// *FetchFailed and no items.
func FetchAll[T any](ctx context.Context, fetch PageFunc[T]) ([]T, error) {
	var all []T
	var next *string
	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, &FetchFailed{Page: page, Err: err}
		}
		out, err := fetch(ctx, next)
		if err != nil {
			return nil, &FetchFailed{Page: page, Err: err}
		}
		all = append(all, out.Items...)
		// Some APIs echo the last token on the final page.
		if aws.ToString(out.NextToken) == "" || (next != nil && aws.ToString(out.NextToken) == aws.ToString(next)) {
			break
		}
		next = out.NextToken
	}
	return all, nil
}
