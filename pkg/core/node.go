package core

import (
	"fmt"
	"strings"
)

// Level identifies a depth in the project -> component -> translation hierarchy.
type Level int

// Hierarchy levels.
const (
	LevelProject Level = iota + 1
	LevelComponent
	LevelTranslation
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelProject:
		return "project"
	case LevelComponent:
		return "component"
	case LevelTranslation:
		return "translation"
	default:
		return "unknown"
	}
}

// NodePath addresses a project, a component or a translation.
type NodePath struct {
	Project   string
	Component string
	Language  string
}

// ProjectPath returns the path of a project.
func ProjectPath(project string) NodePath {
	return NodePath{Project: project}
}

// ComponentPath returns the path of a component.
func ComponentPath(project, component string) NodePath {
	return NodePath{Project: project, Component: component}
}

// TranslationPath returns the path of a translation.
func TranslationPath(project, component, language string) NodePath {
	return NodePath{Project: project, Component: component, Language: language}
}

// ParseNodePath parses "project[/component[/language]]".
func ParseNodePath(s string) (NodePath, error) {
	s = strings.Trim(s, "/")
	if s == "" {
		return NodePath{}, fmt.Errorf("empty node path")
	}
	parts := strings.Split(s, "/")
	if len(parts) > 3 {
		return NodePath{}, fmt.Errorf("node path %q has more than three segments", s)
	}
	for _, p := range parts {
		if p == "" {
			return NodePath{}, fmt.Errorf("node path %q has an empty segment", s)
		}
	}

	var n NodePath
	n.Project = parts[0]
	if len(parts) > 1 {
		n.Component = parts[1]
	}
	if len(parts) > 2 {
		n.Language = parts[2]
	}
	return n, nil
}

// Level returns the depth addressed by the path.
func (n NodePath) Level() Level {
	switch {
	case n.Language != "":
		return LevelTranslation
	case n.Component != "":
		return LevelComponent
	default:
		return LevelProject
	}
}

// Parent returns the path one level up. The parent of a project is itself.
func (n NodePath) Parent() NodePath {
	switch n.Level() {
	case LevelTranslation:
		return ComponentPath(n.Project, n.Component)
	default:
		return ProjectPath(n.Project)
	}
}

// String renders the path as "project/component/language".
func (n NodePath) String() string {
	switch n.Level() {
	case LevelTranslation:
		return n.Project + "/" + n.Component + "/" + n.Language
	case LevelComponent:
		return n.Project + "/" + n.Component
	default:
		return n.Project
	}
}

// URL returns the canonical page location of the node.
func (n NodePath) URL() string {
	return "/projects/" + n.String()
}
