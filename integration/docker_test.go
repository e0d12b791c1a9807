// Package integration exercises provd end to end: a real HTTP server
// backed by the real processor and queue, fed by a disposable Docker
// container instead of an in-process client, the way client/smoke_test.go
// exercises rigd by spawning the real daemon rather than calling its
// packages directly.
package integration

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/provtrace/provtrace/internal/dockerutil"
	"github.com/provtrace/provtrace/processor"
	"github.com/provtrace/provtrace/queue"
	"github.com/provtrace/provtrace/server"
)

// safeBuffer guards a bytes.Buffer with a mutex, the way processor_test.go's
// captureSink guards its job slice: TextSink.Emit writes from the processor
// goroutine while the test goroutine reads via String, concurrently.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// agentImage is a minimal image with curl, used to post a canned batch
// of requests at the test's provd instance from inside a container (so
// the request genuinely crosses a container network boundary, not just
// an in-process net/http round trip).
const agentImage = "curlimages/curl:8.10.1"

// TestDockerAgentPostsBatch skips unless a Docker daemon is reachable,
// mirroring client/smoke_test.go's "rigd not available" skip. It spins a disposable container that POSTs a Start/Exec/
// End batch at a provd instance running in this test process, then
// asserts the resulting job summary dump.
func TestDockerAgentPostsBatch(t *testing.T) {
	cli, err := dockerutil.Client()
	if err != nil {
		t.Skip("docker not available")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		t.Skip("docker daemon not reachable")
	}

	dump := &safeBuffer{}
	q := queue.New()
	p := processor.New(q, processor.NewTextSink(dump))
	p.DrainInterval = time.Millisecond
	audit := server.NewAuditLog()
	p.Audit = audit

	httpSrv := httptest.NewServer(server.New(q, audit, 0).Handler())
	defer httpSrv.Close()

	procCtx, procCancel := context.WithCancel(context.Background())
	defer procCancel()
	procDone := make(chan struct{})
	go func() {
		defer close(procDone)
		p.Run(procCtx)
	}()

	_, port, err := net.SplitHostPort(strings.TrimPrefix(httpSrv.URL, "http://"))
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	target := fmt.Sprintf("http://host.docker.internal:%s/log", port)

	exitCode, logs, err := runAgentContainer(ctx, cli, target)
	if err != nil {
		t.Fatalf("run agent container: %v", err)
	}
	if exitCode != 0 {
		t.Fatalf("agent container exited %d, logs:\n%s", exitCode, logs)
	}

	if !waitForDump(dump, "Job ID: int-job-1", 5*time.Second) {
		t.Fatalf("job summary not emitted within timeout; agent logs:\n%s\ndump so far:\n%s", logs, dump.String())
	}

	procCancel()
	<-procDone

	out := dump.String()
	for _, want := range []string{
		"Job ID: int-job-1",
		"Cluster: int-cluster",
		"-- Execution 0: step-1 --",
		"Reads: { /data/in.txt }",
		"Writes: { /data/out.txt }",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("job summary dump missing %q, got:\n%s", want, out)
		}
	}
}

// runAgentContainer runs agentImage with a shell script that POSTs a
// Start, one Exec batch, and an End request at target, then returns the
// container's exit code and combined stdout/stderr. Adapted from
// internal/server/service/container.go's create/start/attach-logs/wait/
// remove lifecycle, simplified: no port publishing (the container only
// dials out), no bind mounts, no onexit backup cleanup (a disposable
// test container outliving one failed test run is an acceptable cost
// the real rigd's always-on services can't afford).
func runAgentContainer(ctx context.Context, cli *dockerclient.Client, target string) (int, string, error) {
	script := buildAgentScript(target)

	resp, err := cli.ContainerCreate(ctx, &container.Config{
		Image: agentImage,
		Cmd:   []string{"sh", "-c", script},
	}, &container.HostConfig{
		ExtraHosts: []string{"host.docker.internal:host-gateway"},
	}, nil, nil, "")
	if err != nil {
		return 0, "", fmt.Errorf("create container: %w", err)
	}
	id := resp.ID

	defer func() {
		cleanCtx, cleanCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cleanCancel()
		cli.ContainerRemove(cleanCtx, id, container.RemoveOptions{Force: true})
	}()

	if err := cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return 0, "", fmt.Errorf("start container: %w", err)
	}

	logReader, err := cli.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true, Follow: true})
	if err != nil {
		return 0, "", fmt.Errorf("attach logs: %w", err)
	}
	var logs bytes.Buffer
	logDone := make(chan struct{})
	go func() {
		defer close(logDone)
		stdcopy.StdCopy(&logs, &logs, logReader)
		logReader.Close()
	}()

	waitCh, errCh := cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case result := <-waitCh:
		<-logDone
		return int(result.StatusCode), logs.String(), nil
	case err := <-errCh:
		<-logDone
		return 0, logs.String(), err
	case <-ctx.Done():
		<-logDone
		return 0, logs.String(), ctx.Err()
	}
}

// buildAgentScript renders the curl calls for one Start, one Exec, one
// End request against target, in the request_payload shape
// model.ParseRequest expects (see model/decode_test.go for the
// canonical field names).
func buildAgentScript(target string) string {
	start := `{"job_id":"int-job-1","cluster_name":"int-cluster","path":"/jobs/int-job-1","type":"start","request_payload":{"start_or_end":{"ts":1000}}}`
	exec := `{"job_id":"int-job-1","cluster_name":"int-cluster","path":"/jobs/int-job-1","type":"exec","request_payload":{"exec":{"step_name":"step-1","start_time":1001,"end_time":1002,"events":[` +
		`{"pid":1,"ts":1001,"operation":"read","payload":{"access_in":{"path_in":"/data/in.txt"}}},` +
		`{"pid":1,"ts":1002,"operation":"write","payload":{"access_out":{"path_out":"/data/out.txt"}}}` +
		`]}}}`
	end := `{"job_id":"int-job-1","cluster_name":"int-cluster","path":"/jobs/int-job-1","type":"end","request_payload":{"start_or_end":{"ts":1010}}}`

	var b strings.Builder
	for _, body := range []string{start, exec, end} {
		fmt.Fprintf(&b, "curl -sf -X POST -d '%s' %s || exit 1\n", body, target)
	}
	return b.String()
}

func waitForDump(buf *safeBuffer, want string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if strings.Contains(buf.String(), want) {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return strings.Contains(buf.String(), want)
}
