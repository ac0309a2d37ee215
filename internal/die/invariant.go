package die

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// invariant reports an internal-invariant violation. Radio stacks deliver
// surprising orderings, so release builds only log; builds tagged "test" panic.
func invariant(logger *logrus.Logger, msg string, fields logrus.Fields) {
	logger.WithFields(fields).Error("Invariant violated: " + msg)
	if strictInvariants {
		panic(fmt.Sprintf("die: invariant violated: %s %v", msg, fields))
	}
}
