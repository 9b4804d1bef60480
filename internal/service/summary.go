package service

import "schemabench/internal/model"

// Summarize computes scenario statistics over a completed set of runs. It is
// a pure function: calling it twice on the same runs yields identical output,
// and an empty run list yields an all-zero summary.
func Summarize(runs []model.RunResult, isSequential bool) model.ScenarioSummary {
	s := model.ScenarioSummary{TotalRuns: len(runs)}
	if len(runs) == 0 {
		return s
	}

	n := float64(len(runs))
	successes := 0
	successAttempts := 0
	successTokens := 0
	totalAttempts := 0
	var totalDurationMs int64
	byDepth := [4]int{} // successes with cumulative retry index <= d

	for _, run := range runs {
		attempts := countAttempts(run, isSequential)
		totalAttempts += attempts
		totalDurationMs += run.DurationMs
		s.TotalTokensUsed += runTokens(run, isSequential)

		if !run.Success {
			// Failed runs contribute to no retry-depth bucket.
			continue
		}
		successes++
		successAttempts += attempts
		successTokens += runTokens(run, isSequential)

		depth := retryDepth(run, isSequential)
		for d := 0; d < 4; d++ {
			if depth <= d {
				byDepth[d]++
			}
		}
	}

	s.SuccessRate = 100 * float64(successes) / n
	s.FirstAttemptSuccessRate = 100 * float64(byDepth[0]) / n
	s.SuccessAfterRetry1 = 100 * float64(byDepth[1]) / n
	s.SuccessAfterRetry2 = 100 * float64(byDepth[2]) / n
	s.SuccessAfterRetry3 = 100 * float64(byDepth[3]) / n
	s.AverageDurationMs = float64(totalDurationMs) / n
	s.AverageAttempts = float64(totalAttempts) / n
	if successes > 0 {
		s.AverageAttemptsPerSuccess = float64(successAttempts) / float64(successes)
		s.AverageTokensPerSuccess = float64(successTokens) / float64(successes)
	}
	return s
}

// countAttempts is the number of model calls a run consumed. Sequential runs
// sum across their steps; steps never attempted contribute nothing.
func countAttempts(run model.RunResult, isSequential bool) int {
	if !isSequential {
		return len(run.Attempts)
	}
	total := 0
	for _, step := range run.Steps {
		total += len(step.Attempts)
	}
	return total
}

func runTokens(run model.RunResult, isSequential bool) int {
	total := 0
	if !isSequential {
		for _, a := range run.Attempts {
			total += a.Tokens()
		}
		return total
	}
	for _, step := range run.Steps {
		for _, a := range step.Attempts {
			total += a.Tokens()
		}
	}
	return total
}

// retryDepth is the 0-based index of the successful attempt. For sequential
// runs it is the sum across steps of each step's successful attempt index:
// the retries consumed cumulatively over the whole pipeline, not per step.
func retryDepth(run model.RunResult, isSequential bool) int {
	if !isSequential {
		return successIndex(run.Attempts)
	}
	depth := 0
	for _, step := range run.Steps {
		depth += successIndex(step.Attempts)
	}
	return depth
}

func successIndex(attempts []model.AttemptResult) int {
	for i, a := range attempts {
		if a.Success {
			return i
		}
	}
	return 0
}
