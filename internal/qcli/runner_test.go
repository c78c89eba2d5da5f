package qcli

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	awsx "github.com/saltware-cloud/opsassistant/internal/aws"
)

func testCreds() awsx.SessionCredentials {
	return awsx.SessionCredentials{AccessKeyID: "AKIATEST", SecretAccessKey: "secret", SessionToken: "token", Region: "ap-northeast-2"}
}

func TestAskPassesPromptAndCredentials(t *testing.T) {
	r := NewRunner("q", 5*time.Second, zerolog.Nop())
	var gotPrompt, gotEnv string
	r.run = func(ctx context.Context, cmd *exec.Cmd) error {
		raw, err := io.ReadAll(cmd.Stdin)
		if err != nil {
			return err
		}
		gotPrompt = string(raw)
		gotEnv = strings.Join(cmd.Env, "\n")
		if got := strings.Join(cmd.Args, " "); !strings.Contains(got, "chat --no-interactive --trust-all-tools") {
			t.Errorf("args = %s", got)
		}
		cmd.Stdout.Write([]byte("answer text\n"))
		return nil
	}

	out, err := r.Ask(context.Background(), testCreds(), "누가 인스턴스를 종료했어?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if out != "answer text" {
		t.Errorf("out = %q", out)
	}
	if gotPrompt != "누가 인스턴스를 종료했어?" {
		t.Errorf("prompt = %q", gotPrompt)
	}
	for _, want := range []string{"AWS_ACCESS_KEY_ID=AKIATEST", "AWS_SESSION_TOKEN=token"} {
		if !strings.Contains(gotEnv, want) {
			t.Errorf("environment missing %s", want)
		}
	}
}

func TestAskWithoutCredentialsOmitsEnv(t *testing.T) {
	r := NewRunner("q", 5*time.Second, zerolog.Nop())
	var gotEnv []string
	r.run = func(ctx context.Context, cmd *exec.Cmd) error {
		gotEnv = append(gotEnv, cmd.Env...)
		cmd.Stdout.Write([]byte("general answer"))
		return nil
	}

	out, err := r.Ask(context.Background(), awsx.SessionCredentials{}, "AWS 비용 절감 팁 알려줘")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if out != "general answer" {
		t.Errorf("out = %q", out)
	}
	// Zero credentials must not shadow the CLI's ambient identity with
	// empty-valued variables.
	for _, entry := range gotEnv {
		switch entry {
		case "AWS_ACCESS_KEY_ID=", "AWS_SECRET_ACCESS_KEY=", "AWS_SESSION_TOKEN=", "AWS_DEFAULT_REGION=":
			t.Errorf("environment carries empty credential var %q", entry)
		}
	}
}

func TestAskTimeout(t *testing.T) {
	r := NewRunner("q", 20*time.Millisecond, zerolog.Nop())
	r.run = func(ctx context.Context, cmd *exec.Cmd) error {
		<-ctx.Done()
		return ctx.Err()
	}

	_, err := r.Ask(context.Background(), testCreds(), "question")
	if !errors.Is(err, ErrExecutionTimeout) {
		t.Fatalf("err = %v, want ErrExecutionTimeout", err)
	}
}

func TestAskSurfacesStderr(t *testing.T) {
	r := NewRunner("q", 5*time.Second, zerolog.Nop())
	r.run = func(ctx context.Context, cmd *exec.Cmd) error {
		cmd.Stderr.Write([]byte("model unavailable"))
		return errors.New("exit status 2")
	}

	_, err := r.Ask(context.Background(), testCreds(), "question")
	if err == nil || !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("err = %v, want stderr in message", err)
	}
}
