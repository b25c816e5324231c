package verdict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/StepaOpa/SQLinter/internal/model"
)

// CredentialEnv is the variable through which a command source receives the
// credential.
const CredentialEnv = "SQLINTER_API_KEY"

// waitDelay bounds how long Analyze waits for output pipes after the
// command was killed.
const waitDelay = 2 * time.Second

// Command runs an external analysis engine once per file. The request is
// written to its stdin as JSON and the payload is read from its stdout.
type Command struct {
	argv       []string
	credential string
	env        []string
	log        *zap.Logger
}

func NewCommand(argv []string, credential string, log *zap.Logger) (*Command, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, &model.ConfigurationError{Setting: "command.argv", Err: errors.New("no command configured")}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Command{argv: argv, credential: credential, log: log}, nil
}

// WithEnv adds environment entries (KEY=VALUE) for the child process.
func (s *Command) WithEnv(env ...string) *Command {
	s.env = append(s.env, env...)
	return s
}

func (s *Command) Name() string { return "command" }

func (s *Command) NeedsCredential() bool { return true }

// Fingerprint names the command line and extra environment verdicts came from.
func (s *Command) Fingerprint() string {
	return s.Name() + "|" + strings.Join(s.argv, "\x00") + "|" + strings.Join(s.env, "\x00")
}

func (s *Command) Analyze(ctx context.Context, filePath string, text []byte, candidates []model.Candidate) ([]model.Verdict, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if s.credential == "" {
		return nil, &model.ConfigurationError{Setting: CredentialEnv, Err: model.ErrMissingCredential}
	}

	body, err := json.Marshal(NewRequest(filePath, text, candidates, true))
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.argv[0], s.argv[1:]...)
	isolate(cmd)
	cmd.WaitDelay = waitDelay
	cmd.Stdin = bytes.NewReader(body)
	cmd.Env = append(os.Environ(), s.env...)
	cmd.Env = append(cmd.Env, CredentialEnv+"="+s.credential)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.log.Debug("run analysis command", zap.Strings("argv", s.argv), zap.String("path", filePath), zap.Int("queries", len(candidates)))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &model.AnalysisUnavailableError{Source: s.Name(), Detail: "interrupted", Err: ctxErr}
		}
		return nil, &model.AnalysisUnavailableError{Source: s.Name(), Detail: tail(stderr.String()), Err: err}
	}

	items, err := Decode(s.Name(), stdout.Bytes())
	if err != nil {
		return nil, err
	}
	return Align(filePath, candidates, items), nil
}

// tail keeps the end of a diagnostic stream.
func tail(s string) string {
	const limit = 2 << 10
	s = strings.TrimSpace(s)
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s
}
