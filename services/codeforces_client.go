package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Submission is one entry of the judge's user.status feed.
type Submission struct {
	ID                  int64        `json:"id"`
	CreationTimeSeconds int64        `json:"creationTimeSeconds"`
	Verdict             string       `json:"verdict"`
	Problem             JudgeProblem `json:"problem"`
}

// JudgeProblem is one entry of the judge's problemset.
type JudgeProblem struct {
	ContestID int      `json:"contestId"`
	Index     string   `json:"index"`
	Rating    int      `json:"rating"`
	Name      string   `json:"name"`
	Tags      []string `json:"tags"`
}

// Code is the problem's canonical code, e.g. "1234A".
func (p JudgeProblem) Code() string {
	return fmt.Sprintf("%d%s", p.ContestID, p.Index)
}

// JudgeAPI is the engine's view of the external judge. The submission
// checker, problem selector and confirmation sweep all run against this
// interface; tests substitute a scripted fake.
type JudgeAPI interface {
	// SolvedProblems returns every problem code the handle has an OK verdict
	// for. Failures degrade to an empty set: a transient judge outage must
	// not block problem selection, it just narrows the filter.
	SolvedProblems(ctx context.Context, handle string) (map[string]bool, error)
	// CheckSubmission returns the handle's solving (OK) submission for the
	// problem at or after the time floor, or nil.
	CheckSubmission(ctx context.Context, handle, problemCode string, since int64) (*Submission, error)
	// CheckAnySubmission is CheckSubmission without the verdict filter; used
	// for registration confirmation where any attempt proves handle ownership.
	CheckAnySubmission(ctx context.Context, handle, problemCode string, since int64) (*Submission, error)
	Problems(ctx context.Context) ([]JudgeProblem, error)
	// ContestDivisions maps judge contest ids to the division inferred from
	// the contest name. Contests whose name carries no division are absent.
	ContestDivisions(ctx context.Context) (map[int]int, error)
	ValidateHandle(ctx context.Context, handle string) (bool, error)
}

// CodeforcesClient implements JudgeAPI over the Codeforces REST API.
type CodeforcesClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewCodeforcesClient(baseURL string) *CodeforcesClient {
	return &CodeforcesClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// call performs one API request and unmarshals the "result" payload.
// Codeforces wraps every response in {"status","comment","result"}.
func (c *CodeforcesClient) call(ctx context.Context, method string, params url.Values, out interface{}) error {
	u := fmt.Sprintf("%s/%s", strings.TrimRight(c.BaseURL, "/"), method)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrExternalService, err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrExternalService, method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s: read body: %v", ErrExternalService, method, err)
	}

	var envelope struct {
		Status  string          `json:"status"`
		Comment string          `json:"comment"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%w: %s: malformed response: %v", ErrExternalService, method, err)
	}
	if envelope.Status != "OK" {
		return fmt.Errorf("%w: %s: %s", ErrExternalService, method, envelope.Comment)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("%w: %s: malformed result: %v", ErrExternalService, method, err)
		}
	}
	return nil
}

// userSubmissions returns the handle's submissions, newest first.
func (c *CodeforcesClient) userSubmissions(ctx context.Context, handle string) ([]Submission, error) {
	params := url.Values{}
	params.Set("handle", handle)
	params.Set("from", "1")
	params.Set("count", "10000")
	var subs []Submission
	if err := c.call(ctx, "user.status", params, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

func (c *CodeforcesClient) SolvedProblems(ctx context.Context, handle string) (map[string]bool, error) {
	subs, err := c.userSubmissions(ctx, handle)
	if err != nil {
		log.Printf("[Judge] solved-set lookup failed for %s, treating as empty: %v", handle, err)
		return map[string]bool{}, nil
	}
	solved := make(map[string]bool)
	for _, sub := range subs {
		if sub.Verdict == "OK" && sub.Problem.ContestID != 0 && sub.Problem.Index != "" {
			solved[sub.Problem.Code()] = true
		}
	}
	return solved, nil
}

func (c *CodeforcesClient) CheckSubmission(ctx context.Context, handle, problemCode string, since int64) (*Submission, error) {
	return c.checkSubmission(ctx, handle, problemCode, since, true)
}

func (c *CodeforcesClient) CheckAnySubmission(ctx context.Context, handle, problemCode string, since int64) (*Submission, error) {
	return c.checkSubmission(ctx, handle, problemCode, since, false)
}

func (c *CodeforcesClient) checkSubmission(ctx context.Context, handle, problemCode string, since int64, okOnly bool) (*Submission, error) {
	subs, err := c.userSubmissions(ctx, handle)
	if err != nil {
		return nil, err
	}
	// Feed is newest-first; stop scanning once we cross the time floor.
	for i := range subs {
		sub := subs[i]
		if sub.CreationTimeSeconds < since {
			break
		}
		if okOnly && sub.Verdict != "OK" {
			continue
		}
		if sub.Problem.ContestID != 0 && sub.Problem.Code() == problemCode {
			return &sub, nil
		}
	}
	return nil, nil
}

func (c *CodeforcesClient) Problems(ctx context.Context) ([]JudgeProblem, error) {
	var result struct {
		Problems []JudgeProblem `json:"problems"`
	}
	if err := c.call(ctx, "problemset.problems", nil, &result); err != nil {
		return nil, err
	}
	return result.Problems, nil
}

func (c *CodeforcesClient) ContestDivisions(ctx context.Context) (map[int]int, error) {
	var contests []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	if err := c.call(ctx, "contest.list", nil, &contests); err != nil {
		return nil, err
	}
	divisions := make(map[int]int, len(contests))
	for _, contest := range contests {
		if div := DivisionFromContestName(contest.Name); div != 0 {
			divisions[contest.ID] = div
		}
	}
	return divisions, nil
}

func (c *CodeforcesClient) ValidateHandle(ctx context.Context, handle string) (bool, error) {
	params := url.Values{}
	params.Set("handles", handle)
	var users []json.RawMessage
	if err := c.call(ctx, "user.info", params, &users); err != nil {
		// The API answers FAILED for unknown handles; that is a clean "no",
		// not an outage.
		if strings.Contains(err.Error(), "not found") {
			return false, nil
		}
		return false, err
	}
	return len(users) > 0, nil
}

// DivisionFromContestName infers a division from a judge contest name.
// Educational rounds count as Div. 2. Returns 0 when nothing matches.
func DivisionFromContestName(name string) int {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "div. 1") || strings.Contains(lower, "div1"):
		return 1
	case strings.Contains(lower, "div. 2") || strings.Contains(lower, "div2"):
		return 2
	case strings.Contains(lower, "div. 3") || strings.Contains(lower, "div3"):
		return 3
	case strings.Contains(lower, "div. 4") || strings.Contains(lower, "div4"):
		return 4
	case strings.Contains(lower, "educational"):
		return 2
	default:
		return 0
	}
}
