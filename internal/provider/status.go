package provider

import "sync"

// StatusSuccess is the message recorded after a successful sync.
const StatusSuccess = "success"

// SyncStatus is the per-source record of the last sync attempt. It is
// reset before every attempt and mutated exclusively by the owning
// source's Sync; the engine and the progress view only read it.
type SyncStatus struct {
	mu      sync.Mutex
	message string
	subdirs []string
}

// Reset clears the record ahead of a sync attempt.
func (s *SyncStatus) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = ""
	s.subdirs = nil
}

// SetSuccess records a successful sync and the subfolders it touched.
func (s *SyncStatus) SetSuccess(subdirs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = StatusSuccess
	s.subdirs = append([]string(nil), subdirs...)
}

// SetError records a failed sync.
func (s *SyncStatus) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.message = err.Error()
	}
}

// Message returns the status message: empty until an attempt finishes,
// then "success" or the error text.
func (s *SyncStatus) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

// Subdirs returns the subfolders synced by the last successful attempt.
func (s *SyncStatus) Subdirs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.subdirs...)
}

// Succeeded reports whether the last attempt completed successfully.
func (s *SyncStatus) Succeeded() bool {
	return s.Message() == StatusSuccess
}
