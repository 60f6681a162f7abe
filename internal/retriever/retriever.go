// Package retriever implements the crew member that answers web searches
// and performs API calls for the planner.
package retriever

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/mtzanidakis/agentcrew/internal/actor"
	"github.com/mtzanidakis/agentcrew/internal/message"
	"github.com/mtzanidakis/agentcrew/internal/plan"
	"github.com/mtzanidakis/agentcrew/internal/search"
)

const Name = "Retriever"

// Fetcher performs one API request and returns the response as text.
type Fetcher interface {
	Do(ctx context.Context, spec plan.APIRequestSpec) (string, error)
}

type Retriever struct {
	*actor.Base
	search      search.Searcher
	fetch       Fetcher
	concurrency int
}

// New returns a retriever. concurrency bounds the API calls of one request
// that run at the same time; values below 1 mean one at a time.
func New(s search.Searcher, f Fetcher, concurrency int) *Retriever {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Retriever{
		Base:        actor.NewBase(Name),
		search:      s,
		fetch:       f,
		concurrency: concurrency,
	}
}

func (r *Retriever) Receive(ctx context.Context, sender string, msg message.Message) {
	status := r.Execute(ctx, msg)
	slog.Debug("retriever handled message", "type", msg.Type(), "sender", sender, "status", status)
}

func (r *Retriever) Execute(ctx context.Context, msg message.Message) string {
	switch m := msg.(type) {
	case message.SearchRequest:
		return r.handleSearch(ctx, m)
	case message.APIRequest:
		return r.handleAPI(ctx, m)
	}
	return "No action taken."
}

func (r *Retriever) handleSearch(ctx context.Context, m message.SearchRequest) string {
	if err := actor.Require("requester", m.Requester); err != nil {
		return actor.ErrorStatus(err)
	}

	var results string
	if err := actor.Require("query", m.Query); err != nil {
		results = actor.ErrorStatus(err)
	} else {
		slog.Info("searching", "task_id", m.TaskID, "query", m.Query, "requester", m.Requester)
		results = r.runSearch(ctx, m.Query)
	}

	if err := r.Send(ctx, m.Requester, message.SearchResult{TaskID: m.TaskID, Results: results}); err != nil {
		slog.Error("send search result", "requester", m.Requester, "error", err)
		return actor.ErrorStatus(err)
	}
	return "Search completed for: " + m.Query
}

// runSearch returns the search results, or the failure as text.
func (r *Retriever) runSearch(ctx context.Context, query string) string {
	if r.search == nil {
		return actor.ErrorStatus(search.ErrNotConfigured)
	}
	res, err := r.search.Search(ctx, query)
	if err != nil {
		slog.Warn("search failed", "query", query, "error", err)
		return actor.ErrorStatus(fmt.Errorf("search: %w", err))
	}
	return res
}

func (r *Retriever) handleAPI(ctx context.Context, m message.APIRequest) string {
	if err := actor.Require("requester", m.Requester); err != nil {
		return actor.ErrorStatus(err)
	}

	var results []string
	if len(m.Requests) == 0 {
		results = []string{actor.ErrorStatus(actor.MissingField("requests"))}
	} else {
		slog.Info("performing api calls", "task_id", m.TaskID, "count", len(m.Requests), "requester", m.Requester)
		results = r.callAll(ctx, m.Requests)
	}

	if err := r.Send(ctx, m.Requester, message.APIResult{TaskID: m.TaskID, Results: results}); err != nil {
		slog.Error("send api result", "requester", m.Requester, "error", err)
		return actor.ErrorStatus(err)
	}
	return "API calls completed for task."
}

// callAll performs every request and returns one result per request, in
// request order. Failures are reported as text at their index.
func (r *Retriever) callAll(ctx context.Context, specs []plan.APIRequestSpec) []string {
	results := make([]string, len(specs))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, spec := range specs {
		if spec.URL == "" {
			results[i] = actor.ErrorStatus(actor.MissingField("url"))
			continue
		}
		g.Go(func() error {
			results[i] = r.call(ctx, spec)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Retriever) call(ctx context.Context, spec plan.APIRequestSpec) string {
	if r.fetch == nil {
		return "Error: no fetcher configured"
	}
	body, err := r.fetch.Do(ctx, spec)
	if err != nil {
		slog.Warn("api call failed", "url", spec.URL, "method", spec.Method, "error", err)
		return actor.ErrorStatus(err)
	}
	return body
}
