package checkout

import "time"

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
