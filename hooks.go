package sitemaps

import "context"

// Hooks lets the embedding site narrow or rewrite what a feed lists. Every
// hook is optional; a nil hook passes content through unchanged. Returning
// an empty slice yields an empty listing.
type Hooks struct {
	Pages      func(ctx context.Context, pages []Entry) []Entry
	Tags       func(ctx context.Context, tags []Term) []Term
	Categories func(ctx context.Context, categories []Term) []Term
	Users      func(ctx context.Context, users []User) []User
	News       func(ctx context.Context, posts []Entry) []Entry
	Day        func(ctx context.Context, posts []Entry) []Entry
}

func (h Hooks) pages(ctx context.Context, e []Entry) []Entry {
	if h.Pages == nil {
		return e
	}
	return h.Pages(ctx, e)
}

func (h Hooks) tags(ctx context.Context, t []Term) []Term {
	if h.Tags == nil {
		return t
	}
	return h.Tags(ctx, t)
}

func (h Hooks) categories(ctx context.Context, t []Term) []Term {
	if h.Categories == nil {
		return t
	}
	return h.Categories(ctx, t)
}

func (h Hooks) users(ctx context.Context, u []User) []User {
	if h.Users == nil {
		return u
	}
	return h.Users(ctx, u)
}

func (h Hooks) news(ctx context.Context, e []Entry) []Entry {
	if h.News == nil {
		return e
	}
	return h.News(ctx, e)
}

func (h Hooks) day(ctx context.Context, e []Entry) []Entry {
	if h.Day == nil {
		return e
	}
	return h.Day(ctx, e)
}
