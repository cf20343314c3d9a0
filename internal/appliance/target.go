package appliance

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultSSHPort is the administrative ssh port of the appliance.
const DefaultSSHPort = 122

// Target identifies one ssh-reachable host of the appliance.
type Target struct {
	User string
	Host string
	Port int
}

// ParseTarget parses "[user@]host[:port]" into a Target. The
// administrative user and port are filled in when omitted.
func ParseTarget(s string) (Target, error) {
	target := Target{User: "admin", Port: DefaultSSHPort}

	if i := strings.IndexByte(s, '@'); i >= 0 {
		target.User, s = s[:i], s[i+1:]
	}
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		port, err := strconv.Atoi(s[i+1:])
		if err != nil || port < 1 || port > 65535 {
			return Target{}, fmt.Errorf("invalid target port in %q", s)
		}
		target.Port, s = port, s[:i]
	}
	if s == "" {
		return Target{}, fmt.Errorf("empty target host")
	}
	target.Host = s

	return target, nil
}

// WithHost returns a copy of the target pointing at a different host,
// keeping user and port. Storage node routes name bare hostnames that
// share the appliance's administrative ssh setup.
func (t Target) WithHost(host string) Target {
	t.Host = host
	return t
}

// SSHArgs builds the argument list for an ssh invocation of command on
// the target.
func (t Target) SSHArgs(command ...string) []string {
	args := []string{
		"-p", strconv.Itoa(t.Port),
		"-l", t.User,
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=no",
		t.Host,
		"--",
	}
	return append(args, command...)
}

// RemoteShell returns the value for rsync's --rsh option so transfers
// ride the same ssh transport.
func (t Target) RemoteShell(sshBin string) string {
	return fmt.Sprintf("%s -p %d -l %s -o BatchMode=yes -o StrictHostKeyChecking=no", sshBin, t.Port, t.User)
}

// HostPath renders an rsync remote path spec for path on the target.
func (t Target) HostPath(path string) string {
	return t.Host + ":" + path
}

func (t Target) String() string {
	return fmt.Sprintf("%s@%s:%d", t.User, t.Host, t.Port)
}
