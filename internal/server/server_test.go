package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/affective-thought-kernel/internal/jsonx"
	"github.com/affective-thought-kernel/internal/kernel"
	"github.com/affective-thought-kernel/internal/llm"
	"github.com/affective-thought-kernel/internal/selfmod"
	"github.com/affective-thought-kernel/internal/thought"
)

const thoughtText = "Quiet rooms hum."

func newTestServer(t *testing.T) (*httptest.Server, *kernel.Kernel) {
	t.Helper()
	cfg := kernel.DefaultConfig()
	cfg.AgingInterval = 0
	cfg.Thought.TickInterval = time.Hour
	cfg.Thought.CharDelay = 0
	cfg.Thought.CharVariance = 0
	cfg.Thought.MaxThoughtsPerHour = 0
	cfg.SelfMod.Random = func() float64 { return 1 }

	gen := llm.GeneratorFunc(func(context.Context, string, llm.Options) (string, error) {
		return thoughtText, nil
	})
	k, err := kernel.New(cfg, kernel.Deps{Generator: gen}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, k.Start(context.Background()))

	srv := New(k, DefaultConfig(), zaptest.NewLogger(t))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		k.Stop()
	})
	return ts, k
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := do(t, http.MethodGet, ts.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","scheduler":"idle_waiting"}`, string(body))
}

func TestPostMessage(t *testing.T) {
	ts, k := newTestServer(t)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/messages",
		`{"person_id":"ana","text":"hello again","emotion":"joy","affection":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out kernel.Outcome
	require.NoError(t, jsonx.Unmarshal(body, &out))
	assert.Equal(t, 1, out.Bond.MomentsOfConnection)
	assert.NotEmpty(t, out.Voices.Winner.Voice.Name)

	_, ok := k.Core().Bond("ana")
	assert.True(t, ok)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/messages", `{"text":"anonymous"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/messages", `{"person_id":"ana","interaction":"wave"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/messages", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestActivityAndState(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/activity", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/state", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st kernel.StateView
	require.NoError(t, jsonx.Unmarshal(body, &st))
	assert.NotEmpty(t, st.DominantEmotion)
	assert.NotEmpty(t, st.Affect.Voices)
	assert.True(t, st.Scheduler.Enabled)
}

func TestGenerateAndListThoughts(t *testing.T) {
	ts, k := newTestServer(t)

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/thoughts/generate", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		return k.Journal().State().TotalThoughts == 1
	}, 2*time.Second, 5*time.Millisecond)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/thoughts?limit=10", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list ThoughtsResponse
	require.NoError(t, jsonx.Unmarshal(body, &list))
	require.Len(t, list.Thoughts, 1)
	assert.Equal(t, thoughtText, list.Thoughts[0].Content)
	assert.Equal(t, 1, list.TotalThoughts)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/thoughts?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchThoughts(t *testing.T) {
	ts, k := newTestServer(t)
	require.NoError(t, k.TriggerThought())
	require.Eventually(t, func() bool {
		return k.Search().Len() == 1
	}, 2*time.Second, 5*time.Millisecond)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/thoughts/search?q=rooms", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Hits []struct {
			Thought struct {
				Content string `json:"content"`
			} `json:"thought"`
		} `json:"hits"`
	}
	require.NoError(t, jsonx.Unmarshal(body, &out))
	require.Len(t, out.Hits, 1)
	assert.Equal(t, thoughtText, out.Hits[0].Thought.Content)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/thoughts/search", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSchedulerControl(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/scheduler/stop", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"state":"stopped"`)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/thoughts/generate", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = do(t, http.MethodPost, ts.URL+"/api/scheduler/start", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"state":"idle_waiting"`)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/scheduler/start", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = do(t, http.MethodPost, ts.URL+"/api/scheduler/enabled", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"enabled":false`)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/scheduler/enabled", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSchedulerStartRejectedAfterKernelStop(t *testing.T) {
	ts, k := newTestServer(t)
	require.NoError(t, k.Stop())

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/scheduler/start", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, thought.StateStopped, k.Scheduler().State())
}

func TestProposalLifecycle(t *testing.T) {
	ts, k := newTestServer(t)

	prop := selfmod.ProposeRewrite(k.Core().Snapshot(), selfmod.Trigger{
		Type:      selfmod.TriggerGrowth,
		Source:    selfmod.SourceJoy,
		Intensity: 0.9,
	})
	require.NoError(t, k.Proposer().Submit(prop))

	resp, body := do(t, http.MethodGet, ts.URL+"/api/proposals", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), prop.ID)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/proposals/"+prop.ID+"/revert", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = do(t, http.MethodPost, ts.URL+"/api/proposals/"+prop.ID+"/accept", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var accepted selfmod.Proposal
	require.NoError(t, jsonx.Unmarshal(body, &accepted))
	assert.Equal(t, selfmod.StatusApplied, accepted.Status)

	resp, body = do(t, http.MethodPost, ts.URL+"/api/proposals/"+prop.ID+"/revert", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"reverted"`)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/proposals/nope/accept", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResolveQuestionAndForgetPerson(t *testing.T) {
	ts, k := newTestServer(t)
	require.True(t, k.Core().AddExistentialQuestion("Do I dream when no one is here?"))

	resp, body := do(t, http.MethodPost, ts.URL+"/api/questions/resolve",
		`{"question":"Do I dream when no one is here?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(body), "Do I dream")

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/questions/resolve", `{"question":"unknown"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, ts.URL+"/api/questions/resolve", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/messages", `{"person_id":"mika","text":"hi","emotion":"joy"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodDelete, ts.URL+"/api/people/mika/model", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/messages", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
