package engine

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// LocalIdentity tracks who "me" is: the configured character name, an
// optionally configured actor id, and the actor id learned from traffic when
// a registered nickname equals the character name.
type LocalIdentity struct {
	mu            sync.RWMutex
	characterName string
	knownActorID  int
	playerID      int
}

func NewLocalIdentity(characterName string, knownActorID int) *LocalIdentity {
	li := &LocalIdentity{characterName: strings.TrimSpace(characterName)}
	if knownActorID > 0 {
		li.knownActorID = knownActorID
		li.playerID = knownActorID
	}
	return li
}

// ObserveNickname implements store.NameObserver.
func (li *LocalIdentity) ObserveNickname(actorID int, name string) {
	li.mu.Lock()
	defer li.mu.Unlock()
	if actorID > 0 && sameName(name, li.characterName) {
		li.playerID = actorID
	}
}

// sameName compares trimmed names case-insensitively. An empty character name
// matches nothing.
func sameName(nick, character string) bool {
	if character == "" {
		return false
	}
	fold := cases.Fold()
	return fold.String(strings.TrimSpace(nick)) == fold.String(character)
}

func (li *LocalIdentity) SetCharacterName(name string) {
	li.mu.Lock()
	li.characterName = strings.TrimSpace(name)
	li.mu.Unlock()
}

func (li *LocalIdentity) CharacterName() string {
	li.mu.RLock()
	defer li.mu.RUnlock()
	return li.characterName
}

// BindActorID pins the local player id. Non-positive ids clear it.
func (li *LocalIdentity) BindActorID(id int) {
	li.mu.Lock()
	defer li.mu.Unlock()
	if id <= 0 {
		li.playerID = 0
		return
	}
	li.playerID = id
}

func (li *LocalIdentity) PlayerID() int {
	li.mu.RLock()
	defer li.mu.RUnlock()
	return li.playerID
}

// Reset forgets the learned id and falls back to the configured one.
func (li *LocalIdentity) Reset() {
	li.mu.Lock()
	li.playerID = li.knownActorID
	li.mu.Unlock()
}

// Resolve returns every actor id that counts as the local player: the player
// id, actors whose nickname case-folds to the character name, and the summon
// closure of those in both directions. It returns nil when nothing is known.
func (li *LocalIdentity) Resolve(nicknames map[int]string, summons map[int]int) map[int]struct{} {
	li.mu.RLock()
	name := li.characterName
	pid := li.playerID
	li.mu.RUnlock()

	ids := map[int]struct{}{}
	if pid > 0 {
		ids[pid] = struct{}{}
	}
	for id, nick := range nicknames {
		if sameName(nick, name) {
			ids[id] = struct{}{}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	for changed := true; changed; {
		changed = false
		for summon, owner := range summons {
			_, hasSummon := ids[summon]
			_, hasOwner := ids[owner]
			switch {
			case hasOwner && !hasSummon:
				ids[summon] = struct{}{}
				changed = true
			case hasSummon && !hasOwner:
				ids[owner] = struct{}{}
				changed = true
			}
		}
	}
	return ids
}
