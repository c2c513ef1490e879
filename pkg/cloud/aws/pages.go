package aws

import "context"

// Pager is the shape of the SDK's generated paginators, e.g.
// *iam.ListUsersPaginator (Out = *iam.ListUsersOutput, Opt = iam.Options).
type Pager[Out any, Opt any] interface {
	HasMorePages() bool
	NextPage(ctx context.Context, optFns ...func(*Opt)) (Out, error)
}

// CollectPages drains p and concatenates the items of every page.
func CollectPages[Out, Opt, T any](ctx context.Context, p Pager[Out, Opt], items func(Out) []T) ([]T, error) {
	var out []T
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, items(page)...)
	}
	return out, nil
}
