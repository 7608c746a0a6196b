package scheduler

import (
	"fmt"
	"time"
)

func errBadInterval(d time.Duration) error {
	return fmt.Errorf("scheduler: interval must be positive, got %s", d)
}

func errDuplicateJob(name string) error {
	return fmt.Errorf("scheduler: job %q already registered", name)
}
