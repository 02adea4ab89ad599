package gh

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/cli/go-gh"
)

var (
	exec   func(args ...string) (bytes.Buffer, bytes.Buffer, error) = gh.Exec
	output io.Writer                                                = os.Stdout
)

func NewIssue(repoUrl string, title string, content string) error {
	out, _, err := exec(
		"issue",
		"-R",
		repoUrl,
		"create",
		"--title",
		title,
		"--body",
		content)
	output.Write(out.Bytes())
	return err
}

func AddComment(issueUrl string, title string, content string) error {
	out, _, err := exec(
		"issue",
		"comment",
		issueUrl,
		"--body",
		fmt.Sprintf("%s\n%s", title, content))
	output.Write(out.Bytes())
	return err
}
