package telegram

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// Prompt asks for login details on a reader, hiding the 2FA password when the
// reader is a terminal.
type Prompt struct {
	phone string
	in    *bufio.Reader
	fd    int
	tty   bool
	out   io.Writer
}

// NewPrompt reads answers from in and writes questions to out. phone may be
// preset to skip the first question.
func NewPrompt(in io.Reader, out io.Writer, phone string) *Prompt {
	p := &Prompt{phone: strings.TrimSpace(phone), in: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
		p.tty = true
	}
	return p
}

func (p *Prompt) ask(question string) (string, error) {
	fmt.Fprint(p.out, question)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", errors.Wrap(err, "failed to read input")
	}
	answer := strings.TrimSpace(line)
	if answer == "" {
		return "", errors.New("empty answer")
	}
	return answer, nil
}

func (p *Prompt) Phone(_ context.Context) (string, error) {
	if p.phone != "" {
		return p.phone, nil
	}
	return p.ask("Enter phone number (international format): ")
}

func (p *Prompt) Code(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	return p.ask("Enter the login code: ")
}

func (p *Prompt) Password(_ context.Context) (string, error) {
	if !p.tty {
		return p.ask("Enter 2FA password: ")
	}
	fmt.Fprint(p.out, "Enter 2FA password: ")
	pw, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", errors.Wrap(err, "failed to read password")
	}
	return strings.TrimSpace(string(pw)), nil
}

func (p *Prompt) AcceptTermsOfService(_ context.Context, tos tg.HelpTermsOfService) error {
	logrus.Infof("Accepting Telegram terms of service: %s", tos.ID.Data)
	return nil
}

func (p *Prompt) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("phone number is not registered; sign up with an official client first")
}
