package git

import (
	"os/exec"
	"path/filepath"
	"strings"
)

// Status describes how git sees the store file
type Status struct {
	IsRepo  bool
	Tracked bool
	Ignored bool
}

// IsGitRepo checks if the working directory is inside a git repository
func IsGitRepo(workDir string) bool {
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = workDir
	return cmd.Run() == nil
}

// IsTracked checks if a file is tracked by git
func IsTracked(workDir, path string) bool {
	cmd := exec.Command("git", "ls-files", "--", path)
	cmd.Dir = workDir
	output, err := cmd.Output()
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(output))) > 0
}

// IsIgnored checks if a file is ignored by git (handles all .gitignore files)
func IsIgnored(workDir, path string) bool {
	cmd := exec.Command("git", "check-ignore", "-q", "--", path)
	cmd.Dir = workDir
	// exit code 0 means ignored
	return cmd.Run() == nil
}

// CheckStoreFile reports the git status of the store file at storePath
func CheckStoreFile(storePath string) *Status {
	workDir := filepath.Dir(storePath)
	if !IsGitRepo(workDir) {
		return &Status{}
	}

	name := filepath.Base(storePath)
	return &Status{
		IsRepo:  true,
		Tracked: IsTracked(workDir, name),
		Ignored: IsIgnored(workDir, name),
	}
}

// Warning returns a one-line advisory for the store file, or "".
// A store that embeds wrapped keys should stay out of git; a keyring-backed
// store holds only ciphertext.
func (s *Status) Warning(name string, embedsKeys bool) string {
	if s == nil || !s.IsRepo {
		return ""
	}
	switch {
	case embedsKeys && s.Tracked:
		return "warning: " + name + " is tracked by git and contains passphrase-wrapped keys (run: git rm --cached " + name + ")"
	case embedsKeys && !s.Ignored:
		return "warning: " + name + " not in .gitignore and contains passphrase-wrapped keys"
	case !embedsKeys && s.Tracked:
		return "note: " + name + " is tracked by git; its keys live in the OS keyring of this machine only"
	}
	return ""
}
