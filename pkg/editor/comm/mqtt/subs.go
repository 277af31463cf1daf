package mqtt

import (
	"strings"
	"sync"
)

// Handler is the callback when a message is received. The topic has
// the prefix of the Queue removed.
type Handler func(topic string, payload []byte)

// MatchTopic matches topic with a filter which may contain + and a
// trailing #.
func MatchTopic(topic, filter string) bool {
	topicLevels, filterLevels := strings.Split(topic, "/"), strings.Split(filter, "/")
	for n, level := range filterLevels {
		if level == "#" && n+1 == len(filterLevels) {
			return true
		}
		if n >= len(topicLevels) {
			return false
		}
		if level != "+" && level != topicLevels[n] {
			return false
		}
	}
	return len(topicLevels) == len(filterLevels)
}

// subscriptions is the local registry of handlers by filter. Messages
// from the broker are dispatched here, so several handlers can share
// one broker subscription.
type subscriptions struct {
	filters map[string][]*Subscription
	lock    sync.RWMutex
}

// add registers sub and reports whether its filter is new.
func (s *subscriptions) add(sub *Subscription) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.filters == nil {
		s.filters = make(map[string][]*Subscription)
	}
	subs := s.filters[sub.filter]
	s.filters[sub.filter] = append(subs, sub)
	return len(subs) == 0
}

// remove unregisters sub and reports whether its filter is gone.
func (s *subscriptions) remove(sub *Subscription) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	subs := s.filters[sub.filter]
	for n, item := range subs {
		if item == sub {
			subs = append(subs[:n:n], subs[n+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(s.filters, sub.filter)
		return true
	}
	s.filters[sub.filter] = subs
	return false
}

// list returns all filters.
func (s *subscriptions) list() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	filters := make([]string, 0, len(s.filters))
	for filter := range s.filters {
		filters = append(filters, filter)
	}
	return filters
}

// handlers collects handlers matching topic.
func (s *subscriptions) handlers(topic string) []Handler {
	s.lock.RLock()
	defer s.lock.RUnlock()
	var handlers []Handler
	for filter, subs := range s.filters {
		if !MatchTopic(topic, filter) {
			continue
		}
		for _, sub := range subs {
			handlers = append(handlers, sub.handler)
		}
	}
	return handlers
}
