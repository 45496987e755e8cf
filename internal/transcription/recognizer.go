package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
)

var (
	ErrEmptyTranscript = errors.New("recognizer produced no text")
	ErrMissingOutput   = errors.New("recognizer produced no output file")
)

// Recognizer turns an audio file into text.
type Recognizer interface {
	Recognize(ctx context.Context, audioPath string) (string, error)
}

// CLIRecognizer shells out to an external speech-recognition binary.
// Contract: on success the process exits zero and writes a sibling
// <base>.txt into the output directory. The process runs in its own
// group so cancellation kills its children too.
type CLIRecognizer struct {
	Bin       string
	Language  string
	OutputDir string
}

func NewCLIRecognizer(bin, language, outputDir string) *CLIRecognizer {
	return &CLIRecognizer{
		Bin:       bin,
		Language:  language,
		OutputDir: outputDir,
	}
}

func (r *CLIRecognizer) Recognize(ctx context.Context, audioPath string) (string, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return "", fmt.Errorf("audio file: %w", err)
	}

	cmd := exec.CommandContext(ctx, r.Bin,
		audioPath,
		"--language", r.Language,
		"--output_format", "txt",
		"--output_dir", r.OutputDir,
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative pid targets the whole process group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("recognizer: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	outPath := filepath.Join(r.OutputDir, base+".txt")

	data, err := os.ReadFile(outPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrMissingOutput
		}
		return "", err
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", ErrEmptyTranscript
	}

	return text, nil
}
