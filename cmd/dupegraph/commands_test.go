package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"

	"dupegraph/internal/api"
	"dupegraph/internal/auth"
	"dupegraph/internal/config"
	"dupegraph/internal/models"
	"dupegraph/internal/store"
)

const (
	hashA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	hashB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type recordedRequest struct {
	method  string
	path    string
	confirm string
	body    map[string]any
}

// fakeAPI answers /health and records every other request with a canned
// response body.
func fakeAPI(t *testing.T, response string) (*config.Config, func() []recordedRequest) {
	t.Helper()
	var (
		mu       sync.Mutex
		requests []recordedRequest
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/health" {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
			return
		}
		rec := recordedRequest{method: r.Method, path: r.URL.Path, confirm: r.Header.Get("X-Confirm")}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		mu.Lock()
		requests = append(requests, rec)
		mu.Unlock()
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(ts.Close)

	cfg := config.Default()
	cfg.APIURL = ts.URL
	cfg.DBPath = "/definitely/not/used.db"
	return &cfg, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), requests...)
	}
}

func runCmd(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func TestFileShowUsesAPIClient(t *testing.T) {
	cfg, requests := fakeAPI(t, `{"hash":"`+hashA+`","state":{},"duplicate_group":{"id":1,"king":"`+hashA+`","members":["`+hashA+`"]},"counts":{}}`)

	jsonOutput := false
	if err := runCmd(t, newFileShowCmd(cfg, &jsonOutput), hashA); err != nil {
		t.Fatalf("execute file show: %v", err)
	}
	got := requests()
	if len(got) != 1 || got[0].method != http.MethodGet || got[0].path != "/v1/files/"+hashA {
		t.Fatalf("unexpected requests: %+v", got)
	}
}

func TestDupBetterSendsDecision(t *testing.T) {
	cfg, requests := fakeAPI(t, `{"decision_id":"d1","action":"better","pairs":1,"changes":[],"needs_search":[]}`)

	jsonOutput := true
	cmd := newDecisionCmd(cfg, &jsonOutput, dupCmdDefs[0])
	if err := runCmd(t, cmd, hashA, hashB); err != nil {
		t.Fatalf("execute dup better: %v", err)
	}
	got := requests()
	if len(got) != 1 || got[0].path != "/v1/decisions" {
		t.Fatalf("unexpected requests: %+v", got)
	}
	if got[0].body["action"] != string(models.ActionBetter) {
		t.Fatalf("expected better action, got %v", got[0].body["action"])
	}
	if got[0].confirm != "" {
		t.Fatalf("non-destructive decision must not send confirmation, got %q", got[0].confirm)
	}
}

func TestDupDestructiveCommandsConfirmWithYes(t *testing.T) {
	cfg, requests := fakeAPI(t, `{"decision_id":"d1","action":"dissolve_duplicate_group","pairs":0,"changes":[],"needs_search":[]}`)

	var def decisionCmdDef
	for _, candidate := range dupCmdDefs {
		if candidate.action == models.ActionDissolveDuplicateGroup {
			def = candidate
		}
	}
	jsonOutput := true
	if err := runCmd(t, newDecisionCmd(cfg, &jsonOutput, def), "--yes", hashA); err != nil {
		t.Fatalf("execute dup dissolve: %v", err)
	}
	got := requests()
	if len(got) != 1 || got[0].confirm != "true" {
		t.Fatalf("expected confirmed request, got %+v", got)
	}
}

func TestDupCommandsOnlyDestructiveHaveYesFlag(t *testing.T) {
	cfg := config.Default()
	jsonOutput := false
	for _, def := range dupCmdDefs {
		cmd := newDecisionCmd(&cfg, &jsonOutput, def)
		hasFlag := cmd.Flags().Lookup("yes") != nil
		if hasFlag != def.action.IsDestructive() {
			t.Fatalf("%s: yes flag present=%t destructive=%t", cmd.Name(), hasFlag, def.action.IsDestructive())
		}
	}
}

func TestPotentialPurgeRequiresYes(t *testing.T) {
	cfg, requests := fakeAPI(t, `{"decision_id":"d1","action":"remove_potentials","pairs":0,"changes":[],"needs_search":[]}`)

	jsonOutput := true
	err := runCmd(t, newPotentialPurgeCmd(cfg, &jsonOutput), hashA)
	if err == nil || !strings.Contains(err.Error(), "--yes") {
		t.Fatalf("expected --yes error, got %v", err)
	}
	if len(requests()) != 0 {
		t.Fatal("unconfirmed purge must not reach the API")
	}

	if err := runCmd(t, newPotentialPurgeCmd(cfg, &jsonOutput), "--yes", hashA); err != nil {
		t.Fatalf("execute potential purge: %v", err)
	}
	got := requests()
	if len(got) != 1 || got[0].method != http.MethodDelete || got[0].path != "/v1/potentials/"+hashA || got[0].confirm != "true" {
		t.Fatalf("unexpected requests: %+v", got)
	}
}

func TestPotentialDecideSendsPair(t *testing.T) {
	cfg, requests := fakeAPI(t, `{"decision_id":"d1","action":"alternate","pairs":1,"changes":[],"needs_search":[]}`)

	jsonOutput := true
	if err := runCmd(t, newPotentialDecideCmd(cfg, &jsonOutput), hashA, hashB, "alternate"); err != nil {
		t.Fatalf("execute potential decide: %v", err)
	}
	got := requests()
	if len(got) != 1 || got[0].path != "/v1/potentials/decide" {
		t.Fatalf("unexpected requests: %+v", got)
	}
	if got[0].body["a"] != hashA || got[0].body["b"] != hashB || got[0].body["action"] != "alternate" {
		t.Fatalf("unexpected body: %v", got[0].body)
	}
}

func TestApplySendsDecisionsInOrder(t *testing.T) {
	cfg, requests := fakeAPI(t, `{"decision_id":"d1","action":"same_quality","pairs":1,"changes":[],"needs_search":[]}`)

	path := filepath.Join(t.TempDir(), "decisions.yaml")
	content := "decisions:\n" +
		"  - action: same_quality\n" +
		"    hashes: [" + hashA + ", " + hashB + "]\n" +
		"  - action: dissolve_duplicate_group\n" +
		"    hashes: [" + hashA + "]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write decisions: %v", err)
	}

	jsonOutput := true
	if err := runCmd(t, newApplyCmd(cfg, &jsonOutput), "-f", path, "--yes"); err != nil {
		t.Fatalf("execute apply: %v", err)
	}
	got := requests()
	if len(got) != 2 {
		t.Fatalf("expected 2 requests, got %+v", got)
	}
	if got[0].body["action"] != "same_quality" || got[1].body["action"] != "dissolve_duplicate_group" {
		t.Fatalf("decisions out of order: %+v", got)
	}
}

func TestReadDecisionFileAcceptsBareList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.yaml")
	content := "- action: better\n  hashes: [" + hashA + ", " + hashB + "]\n  better: " + hashB + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write decisions: %v", err)
	}

	decisions, err := readDecisionFile(path)
	if err != nil {
		t.Fatalf("read decisions: %v", err)
	}
	if len(decisions) != 1 || decisions[0].Action != models.ActionBetter || decisions[0].Better != hashB {
		t.Fatalf("unexpected decisions: %+v", decisions)
	}
}

func TestReadDecisionFileRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, []byte("decisions: []\n"), 0o644); err != nil {
		t.Fatalf("write decisions: %v", err)
	}
	if _, err := readDecisionFile(path); err == nil {
		t.Fatal("expected error for empty decision file")
	}
}

func TestCommandSurfacesAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/health" {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
			return
		}
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"state changed","code":"conflict","error_code":2102}`))
	}))
	defer ts.Close()

	cfg := config.Default()
	cfg.APIURL = ts.URL
	jsonOutput := true
	err := runCmd(t, newDecisionCmd(&cfg, &jsonOutput, dupCmdDefs[1]), hashA, hashB)

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "conflict" {
		t.Fatalf("expected conflict api error, got %v", err)
	}
}

func TestAdminTokenGeneratesVerifiableHash(t *testing.T) {
	jsonOutput := false
	token := "0123456789abcdef0123"
	if err := runCmd(t, newAdminTokenCmd(&jsonOutput), token); err != nil {
		t.Fatalf("execute admin token: %v", err)
	}
	if err := runCmd(t, newAdminTokenCmd(&jsonOutput), "short"); err == nil {
		t.Fatal("expected short token to be rejected")
	}
	hash, err := auth.HashToken(token)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	if !auth.VerifyToken(hash, token) {
		t.Fatal("expected hash to verify")
	}
}

func TestAdminMaintainRunsAgainstLocalStore(t *testing.T) {
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "dupegraph.db")

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := st.RegisterFiles(context.Background(), []string{hashA, hashB}); err != nil {
		t.Fatalf("register files: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	jsonOutput := true
	if err := runCmd(t, newAdminMaintainCmd(&cfg, &jsonOutput)); err != nil {
		t.Fatalf("execute admin maintain: %v", err)
	}
}

func TestApplyFailureNamesDecisionAndReason(t *testing.T) {
	decision := models.Decision{Action: models.ActionDissolveDuplicateGroup, Hashes: []string{hashA}}
	tests := []struct {
		code string
		want string
	}{
		{code: api.CodeConfirmationRequired, want: "decision 3 (dissolve_duplicate_group) destructive, pass --yes, 2 applied before it"},
		{code: api.CodeConflict, want: "decision 3 (dissolve_duplicate_group) expect list is stale, 2 applied before it"},
		{code: api.CodeInternal, want: "decision 3 (dissolve_duplicate_group), 2 applied before it"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			cause := &api.APIError{Status: http.StatusConflict, Code: tt.code, Message: "refused"}
			err := applyFailure(2, decision, cause)
			if !strings.HasPrefix(err.Error(), tt.want) {
				t.Fatalf("expected prefix %q, got %q", tt.want, err.Error())
			}
			var apiErr *api.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected wrapped api error, got %v", err)
			}
		})
	}
}
