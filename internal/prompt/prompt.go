// Package prompt picks the system prompt for a chat turn from the
// client supplied mode.
package prompt

import (
	"fmt"
	"strings"
)

type Mode string

const (
	ModeInterview Mode = "interview"
	ModeDebug     Mode = "debug"
	ModeOptimize  Mode = "optimize"
	ModeML        Mode = "ml"
	ModeDS        Mode = "ds"
)

// Strict is the fixed prompt of the unauthenticated batch endpoint.
const Strict = "You are a strict coding assistant. Only answer programming questions."

const (
	debugPrompt    = "You are a debugging expert. Find the root cause of the reported problem, explain it briefly and show the corrected code."
	optimizePrompt = "You are a code optimization expert. Improve performance, memory use and readability, and explain the complexity of the result."
	mlPrompt       = "You are a senior machine learning architect. Give practical advice on model choice, data pipelines, training and deployment."
	dsPrompt       = "You are a data science expert. Help with data cleaning, analysis, statistics and visualization, with runnable code."
	defaultPrompt  = "You are a professional programming assistant. Give clear, correct and concise answers with code examples."

	interviewStartFmt    = "You are a strict technical interviewer. The interview topic is: %s. Ask one question only about this topic and wait for the candidate's answer."
	interviewContinueFmt = "Continue the strict technical interview on %s. Evaluate the candidate's last answer strictly, point out mistakes, then ask the next question."
)

// Resolve returns the system prompt for mode and the session topic to keep.
// Only interview mode reads or writes the topic: the first interview message
// becomes the topic, later ones reuse it unchanged. Other modes return the
// topic as given.
func Resolve(mode, userMessage, sessionTopic string) (systemPrompt, topic string) {
	switch Mode(strings.ToLower(strings.TrimSpace(mode))) {
	case ModeInterview:
		if sessionTopic == "" {
			return fmt.Sprintf(interviewStartFmt, userMessage), userMessage
		}
		return fmt.Sprintf(interviewContinueFmt, sessionTopic), sessionTopic
	case ModeDebug:
		return debugPrompt, sessionTopic
	case ModeOptimize:
		return optimizePrompt, sessionTopic
	case ModeML:
		return mlPrompt, sessionTopic
	case ModeDS:
		return dsPrompt, sessionTopic
	default:
		return defaultPrompt, sessionTopic
	}
}

// IsInterview reports whether mode uses the session topic.
func IsInterview(mode string) bool {
	return Mode(strings.ToLower(strings.TrimSpace(mode))) == ModeInterview
}
