// Package ghrepo implements a vcache backend over the GitHub API.
//
// Names are repository names under a fixed owner, objects are repository
// metadata snapshots, and the fingerprint is the head commit SHA of the
// default branch. Listing works for organizations and falls back to user
// accounts.
package ghrepo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v67/github"

	"github.com/aweris/vcache"
)

var _ vcache.Backend[string, *Repo, string] = (*Backend)(nil)

// Repo is a snapshot of repository metadata, pinned to the head commit it
// was fetched at.
type Repo struct {
	Owner         string
	Name          string
	FullName      string
	Description   string
	DefaultBranch string
	Private       bool
	Archived      bool
	Fork          bool
	HTMLURL       string
	UpdatedAt     time.Time

	// HeadSHA is the default-branch head commit at fetch time. Empty for
	// repositories without commits.
	HeadSHA string
}

// Backend resolves repository names for one owner.
type Backend struct {
	client *github.Client
	owner  string
}

// New creates a backend for the given owner using an authenticated client.
func New(client *github.Client, owner string) *Backend {
	return &Backend{client: client, owner: owner}
}

// NewWithToken creates a backend with token authentication. An empty token
// yields an unauthenticated client, which works for public repositories
// within rate limits.
func NewWithToken(token, owner string) *Backend {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return New(client, owner)
}

// List returns the names of all repositories the owner currently has.
func (b *Backend) List(ctx context.Context) ([]string, error) {
	names, err := b.listOrg(ctx)
	if err == nil {
		return names, nil
	}
	if !isNotFound(err) {
		return nil, fmt.Errorf("list repositories for %s: %w", b.owner, err)
	}

	// Not an organization; list as a user account.
	names, err = b.listUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("list repositories for %s: %w", b.owner, err)
	}
	return names, nil
}

func (b *Backend) listOrg(ctx context.Context) ([]string, error) {
	opts := &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	var names []string
	for {
		repos, resp, err := b.client.Repositories.ListByOrg(ctx, b.owner, opts)
		if err != nil {
			return nil, err
		}
		for _, repo := range repos {
			names = append(names, repo.GetName())
		}
		if resp.NextPage == 0 {
			return names, nil
		}
		opts.Page = resp.NextPage
	}
}

func (b *Backend) listUser(ctx context.Context) ([]string, error) {
	opts := &github.RepositoryListByUserOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	var names []string
	for {
		repos, resp, err := b.client.Repositories.ListByUser(ctx, b.owner, opts)
		if err != nil {
			return nil, err
		}
		for _, repo := range repos {
			names = append(names, repo.GetName())
		}
		if resp.NextPage == 0 {
			return names, nil
		}
		opts.Page = resp.NextPage
	}
}

// Fetch retrieves repository metadata together with its head commit.
func (b *Backend) Fetch(ctx context.Context, name string) (*Repo, error) {
	ghRepo, _, err := b.client.Repositories.Get(ctx, b.owner, name)
	if err != nil {
		return nil, fmt.Errorf("get repository %s/%s: %w", b.owner, name, err)
	}

	repo := convert(ghRepo)

	sha, ok, err := b.headSHA(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resolve head of %s/%s: %w", b.owner, name, err)
	}
	if ok {
		repo.HeadSHA = sha
	}
	return repo, nil
}

// Hash returns the current head commit SHA for a repository. Repositories
// without commits report the fingerprint as unknown.
func (b *Backend) Hash(ctx context.Context, name string) (string, bool, error) {
	sha, ok, err := b.headSHA(ctx, name)
	if err != nil {
		return "", false, fmt.Errorf("resolve head of %s/%s: %w", b.owner, name, err)
	}
	return sha, ok, nil
}

// HashOf returns the head commit a snapshot was fetched at.
func (b *Backend) HashOf(repo *Repo) (string, bool, error) {
	if repo == nil {
		return "", false, errors.New("ghrepo: nil repository snapshot")
	}
	if repo.HeadSHA == "" {
		return "", false, nil
	}
	return repo.HeadSHA, true, nil
}

func (b *Backend) headSHA(ctx context.Context, name string) (string, bool, error) {
	sha, _, err := b.client.Repositories.GetCommitSHA1(ctx, b.owner, name, "HEAD", "")
	if err != nil {
		// Empty repositories have no HEAD; that is an unknown
		// fingerprint, not a failure.
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusConflict {
			return "", false, nil
		}
		return "", false, err
	}
	return sha, true, nil
}

func convert(repo *github.Repository) *Repo {
	out := &Repo{
		Name:          repo.GetName(),
		FullName:      repo.GetFullName(),
		Description:   repo.GetDescription(),
		DefaultBranch: repo.GetDefaultBranch(),
		Private:       repo.GetPrivate(),
		Archived:      repo.GetArchived(),
		Fork:          repo.GetFork(),
		HTMLURL:       repo.GetHTMLURL(),
	}
	if owner := repo.GetOwner(); owner != nil {
		out.Owner = owner.GetLogin()
	}
	if updated := repo.GetUpdatedAt(); !updated.IsZero() {
		out.UpdatedAt = updated.Time
	}
	return out
}

func isNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}
