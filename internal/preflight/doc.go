// Package preflight runs the environment checks a daemon needs before it
// can usefully start: directory permissions and collaborator reachability.
package preflight
