package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/sells-group/adcrawl/internal/crawler"
	"github.com/sells-group/adcrawl/internal/model"
)

type fakeDomains struct {
	domains []model.Domain
	err     error
}

func (f *fakeDomains) GetAllActiveDomains(context.Context) ([]model.Domain, error) {
	return f.domains, f.err
}

type fakeRunner struct {
	seeds []crawler.Request
	stats crawler.Stats
	err   error
}

func (f *fakeRunner) Run(_ context.Context, seeds ...crawler.Request) (crawler.Stats, error) {
	f.seeds = append(f.seeds, seeds...)
	return f.stats, f.err
}

func TestPayloadValidate(t *testing.T) {
	assert.NoError(t, Payload{Domain: "acme.com", Format: model.FormatText}.Validate())
	assert.NoError(t, Payload{Term: "Acme", Format: model.FormatVideo}.Validate())

	err := Payload{Format: model.FormatText}.Validate()
	assert.ErrorIs(t, err, model.ErrDomainMissing)
	assert.Error(t, Payload{Domain: "a.com", Term: "A", Format: model.FormatText}.Validate())
	assert.Error(t, Payload{Domain: "a.com", Format: "GIF"}.Validate())
}

func TestPayloadSeedAndWebhookBody(t *testing.T) {
	p := Payload{Term: "Acme Corp", Format: model.FormatImage}
	seed := p.Seed("https://ads.test")
	assert.Equal(t, "https://ads.test/?format=IMAGE&region=anywhere&term=Acme+Corp", seed.URL)
	assert.Equal(t, "SEARCH_PAGE", seed.Label)

	body := p.WebhookBody(crawler.Result{Error: "boom"})
	assert.Equal(t, "Acme Corp", body["name"])
	assert.NotContains(t, body, "domain")

	body = Payload{Domain: "acme.com", Format: model.FormatText}.WebhookBody(crawler.Result{})
	assert.Equal(t, "acme.com", body["domain"])
	assert.Equal(t, model.FormatText, body["format"])
}

func TestDomainPayloads(t *testing.T) {
	got := DomainPayloads([]model.Domain{{Domain: "a.com"}, {Domain: "b.com"}})
	assert.Equal(t, []Payload{
		{Domain: "a.com", Format: model.FormatText},
		{Domain: "a.com", Format: model.FormatImage},
		{Domain: "a.com", Format: model.FormatVideo},
		{Domain: "b.com", Format: model.FormatText},
		{Domain: "b.com", Format: model.FormatImage},
		{Domain: "b.com", Format: model.FormatVideo},
	}, got)
	assert.Empty(t, DomainPayloads(nil))
}

func TestSlugAndWorkflowID(t *testing.T) {
	assert.Equal(t, "acme_corp_", slug(" Acme Corp!"))
	id := workflowID(Payload{Domain: "acme.com", Format: model.FormatVideo})
	assert.True(t, strings.HasPrefix(id, "crawl-acme.com-video-"), id)
}

func TestActivity_GetCrawlJobPayloads(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	a := &Activities{Domains: &fakeDomains{domains: []model.Domain{{ID: 1, Domain: "acme.com", Active: true}}}}
	env.RegisterActivity(a)

	val, err := env.ExecuteActivity(a.GetCrawlJobPayloads)
	require.NoError(t, err)
	var got []Payload
	require.NoError(t, val.Get(&got))
	assert.Len(t, got, 3)
	assert.Equal(t, "acme.com", got[2].Domain)
	assert.Equal(t, model.FormatVideo, got[2].Format)
}

func TestActivity_Crawl(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	runner := &fakeRunner{stats: crawler.Stats{RunID: "run-1", RequestsFinished: 5}}
	a := &Activities{Crawler: runner, BaseURL: "https://ads.test"}
	env.RegisterActivity(a)

	val, err := env.ExecuteActivity(a.Crawl, Payload{Domain: "acme.com", Format: model.FormatVideo})
	require.NoError(t, err)
	var got crawler.Result
	require.NoError(t, val.Get(&got))
	assert.Equal(t, 5, got.Stats.RequestsFinished)
	assert.Empty(t, got.Error)
	require.Len(t, runner.seeds, 1)
	assert.Equal(t, "https://ads.test/?domain=acme.com&format=VIDEO&region=anywhere", runner.seeds[0].URL)
}

func TestActivity_CrawlErrorIsReported(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	a := &Activities{Crawler: &fakeRunner{err: errors.New("chrome crashed")}, BaseURL: "https://ads.test"}
	env.RegisterActivity(a)

	val, err := env.ExecuteActivity(a.Crawl, Payload{Term: "Acme", Format: model.FormatText})
	require.NoError(t, err)
	var got crawler.Result
	require.NoError(t, val.Get(&got))
	assert.Equal(t, "chrome crashed", got.Error)
}

func TestActivity_CrawlInvalidPayload(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	a := &Activities{Crawler: &fakeRunner{}}
	env.RegisterActivity(a)

	_, err := env.ExecuteActivity(a.Crawl, Payload{Format: model.FormatText})
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.NonRetryable())
}

func TestCrawlWorkflow_DeliversWebhook(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	a := &Activities{}
	env.RegisterActivity(a)

	p := Payload{Domain: "acme.com", Format: model.FormatImage, Webhook: "https://hook.test/done", WebhookMethod: "PUT"}
	env.OnActivity(a.Crawl, mock.Anything, mock.Anything).
		Return(crawler.Result{Stats: crawler.Stats{RunID: "r1", RequestsFinished: 4}}, nil)

	var delivered []WebhookInput
	env.OnActivity(a.SendWebhook, mock.Anything, mock.Anything).
		Return(func(_ context.Context, in WebhookInput) error {
			delivered = append(delivered, in)
			return nil
		})

	env.ExecuteWorkflow(CrawlWorkflow, p)
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var got crawler.Result
	require.NoError(t, env.GetWorkflowResult(&got))
	assert.Equal(t, 4, got.Stats.RequestsFinished)

	require.Len(t, delivered, 1)
	assert.Equal(t, "https://hook.test/done", delivered[0].Payload.Webhook)
	assert.Equal(t, "r1", delivered[0].Result.Stats.RunID)
}

func TestCrawlWorkflow_NoWebhook(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	a := &Activities{}
	env.RegisterActivity(a)

	env.OnActivity(a.Crawl, mock.Anything, mock.Anything).Return(crawler.Result{Error: "partial"}, nil)
	calls := 0
	env.OnActivity(a.SendWebhook, mock.Anything, mock.Anything).
		Return(func(context.Context, WebhookInput) error {
			calls++
			return nil
		})

	env.ExecuteWorkflow(CrawlWorkflow, Payload{Term: "Acme", Format: model.FormatText})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var got crawler.Result
	require.NoError(t, env.GetWorkflowResult(&got))
	assert.Equal(t, "partial", got.Error)
	assert.Zero(t, calls)
}

func TestCrawlWorkflow_WebhookFailure(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	a := &Activities{}
	env.RegisterActivity(a)

	env.OnActivity(a.Crawl, mock.Anything, mock.Anything).Return(crawler.Result{}, nil)
	attempts := 0
	env.OnActivity(a.SendWebhook, mock.Anything, mock.Anything).
		Return(func(context.Context, WebhookInput) error {
			attempts++
			return errors.New("webhook: unexpected status 502")
		})

	env.ExecuteWorkflow(CrawlWorkflow, Payload{Domain: "acme.com", Format: model.FormatText, Webhook: "https://hook.test"})
	require.True(t, env.IsWorkflowCompleted())
	assert.Error(t, env.GetWorkflowError())
	assert.Equal(t, 3, attempts)
}

func TestProduceJobsWorkflow(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	a := &Activities{}
	env.RegisterActivity(a)
	env.RegisterWorkflow(CrawlWorkflow)

	env.OnActivity(a.GetCrawlJobPayloads, mock.Anything).Return([]Payload{
		{Domain: "acme.com", Format: model.FormatText},
		{Domain: "acme.com", Format: model.FormatImage},
	}, nil)
	env.OnActivity(a.Crawl, mock.Anything, mock.Anything).Return(crawler.Result{}, nil)

	env.ExecuteWorkflow(ProduceJobsWorkflow)
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var started int
	require.NoError(t, env.GetWorkflowResult(&started))
	assert.Equal(t, 2, started)
}

func TestProducer_SubmitJobs(t *testing.T) {
	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("crawl-acme.com-text-1")
	run.On("GetRunID").Return("run-1")
	c.On("ExecuteWorkflow", mock.Anything,
		mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
			return o.TaskQueue == "adcrawl" && strings.HasPrefix(o.ID, "crawl-acme.com-")
		}),
		mock.Anything, mock.Anything,
	).Return(run, nil).Times(3)

	p := NewProducer(c, "adcrawl", &fakeDomains{domains: []model.Domain{{Domain: "acme.com"}}})
	subs, err := p.SubmitJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 3)
	assert.Equal(t, "run-1", subs[0].RunID)
	assert.Equal(t, "acme.com", subs[0].Target)
	assert.Equal(t, []string{"TEXT", "IMAGE", "VIDEO"}, []string{string(subs[0].Format), string(subs[1].Format), string(subs[2].Format)})
	c.AssertExpectations(t)
}

func TestProducer_SubmitForSearchValidates(t *testing.T) {
	c := &mocks.Client{}
	p := NewProducer(c, "adcrawl", &fakeDomains{})
	_, err := p.SubmitForSearch(context.Background(), "   ", "", "")
	assert.ErrorIs(t, err, model.ErrDomainMissing)
	c.AssertNotCalled(t, "ExecuteWorkflow")
}

func TestProducer_StartFailure(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("namespace not found"))

	p := NewProducer(c, "adcrawl", &fakeDomains{})
	subs, err := p.SubmitForDomain(context.Background(), "acme.com", "https://hook.test", "POST")
	require.Error(t, err)
	assert.Empty(t, subs)
}

func TestProducer_ListFailure(t *testing.T) {
	p := NewProducer(&mocks.Client{}, "adcrawl", &fakeDomains{err: errors.New("db down")})
	_, err := p.SubmitJobs(context.Background())
	assert.Error(t, err)
}

func TestProducer_Schedule(t *testing.T) {
	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("adcrawl-produce-jobs")
	run.On("GetRunID").Return("run-9")
	c.On("ExecuteWorkflow", mock.Anything,
		mock.MatchedBy(func(o client.StartWorkflowOptions) bool { return o.CronSchedule == "0 3 * * *" }),
		mock.Anything,
	).Return(run, nil)

	p := NewProducer(c, "adcrawl", &fakeDomains{})
	sub, err := p.Schedule(context.Background(), "0 3 * * *")
	require.NoError(t, err)
	assert.Equal(t, "run-9", sub.RunID)

	_, err = p.Schedule(context.Background(), "")
	assert.Error(t, err)
}

func TestCrawlWorkflow_ActivityFailureStillDeliversWebhook(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	a := &Activities{}
	env.RegisterActivity(a)

	env.OnActivity(a.Crawl, mock.Anything, mock.Anything).
		Return(crawler.Result{}, errors.New("worker lost"))
	var delivered []WebhookInput
	env.OnActivity(a.SendWebhook, mock.Anything, mock.Anything).
		Return(func(_ context.Context, in WebhookInput) error {
			delivered = append(delivered, in)
			return nil
		})

	env.ExecuteWorkflow(CrawlWorkflow, Payload{Domain: "acme.com", Format: model.FormatText, Webhook: "https://hook.test"})
	require.True(t, env.IsWorkflowCompleted())
	assert.Error(t, env.GetWorkflowError())

	require.Len(t, delivered, 1)
	assert.Contains(t, delivered[0].Result.Error, "worker lost")
}

func TestActivity_CrawlHeartbeats(t *testing.T) {
	prev := heartbeatInterval
	heartbeatInterval = 5 * time.Millisecond
	t.Cleanup(func() { heartbeatInterval = prev })

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	a := &Activities{Crawler: &slowRunner{delay: 40 * time.Millisecond}, BaseURL: "https://ads.test"}
	env.RegisterActivity(a)

	val, err := env.ExecuteActivity(a.Crawl, Payload{Domain: "acme.com", Format: model.FormatText})
	require.NoError(t, err)
	var got crawler.Result
	require.NoError(t, val.Get(&got))
	assert.Equal(t, "slow", got.Stats.RunID)
}

type slowRunner struct {
	delay time.Duration
}

func (r *slowRunner) Run(ctx context.Context, _ ...crawler.Request) (crawler.Stats, error) {
	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
		return crawler.Stats{}, ctx.Err()
	}
	return crawler.Stats{RunID: "slow"}, nil
}
