//go:build unix

package schedcore

import (
	"github.com/tklauser/go-sysconf"
)

func GetSysClktck() (int64, error) {
	return sysconf.Sysconf(sysconf.SC_CLK_TCK)
}
