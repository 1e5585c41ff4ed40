// Package services defines the error taxonomy shared by the collaborator
// clients (lister, processor) and the scheduler's failure classification.
package services
