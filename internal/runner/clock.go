package runner

import "time"

// nowFunc is overridden in tests that need deterministic snapshot names.
var nowFunc = time.Now
