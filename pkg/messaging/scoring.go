package messaging

import "math"

const baseScore = 50

// Score is the dispatch priority for a message of priority p sent over ch. Higher is serviced first.
func Score(p Priority, ch Channel) int {
	score := baseScore
	switch p {
	case PriorityEmergency:
		score += 50
	case PriorityUrgent:
		score += 30
	case PriorityHigh:
		score += 20
	case PriorityNormal:
		score += 10
	case PriorityLow:
	}

	switch ch {
	case ChannelSMS:
		score += 15
	case ChannelEmail:
		score += 10
	case ChannelInApp:
		score += 5
	case ChannelPush, ChannelPhone:
	}
	return score
}

// RetryAttempts is the retry budget for a channel at a given priority.
func RetryAttempts(ch Channel, p Priority) int {
	baseline := 1.0
	switch ch {
	case ChannelEmail:
		baseline = 3
	case ChannelSMS, ChannelPush:
		baseline = 2
	case ChannelInApp, ChannelPhone:
		baseline = 1
	}

	multiplier := 1.0
	switch p {
	case PriorityEmergency:
		multiplier = 3
	case PriorityUrgent:
		multiplier = 2
	case PriorityHigh:
		multiplier = 1.5
	case PriorityNormal:
		multiplier = 1
	case PriorityLow:
		multiplier = 0.5
	}

	return int(math.Ceil(baseline * multiplier))
}
