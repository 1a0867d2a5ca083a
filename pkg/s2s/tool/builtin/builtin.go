// Package builtin provides the stock tools the voicebridge relay registers
// for voice sessions: the current date, a deliberately slow weather lookup,
// knowledge-base retrieval, and delegation to an external chat agent.
package builtin
