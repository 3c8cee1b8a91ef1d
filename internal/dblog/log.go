// Package dblog fournit un petit logger à niveaux au-dessus du paquet log
// standard, avec la convention "[LEVEL] [location] message" employée par
// l'original Python (lstore/logger.py, cowabunga/logger.py) plutôt qu'une
// bibliothèque de logging structuré.
package dblog

import (
	"fmt"
	"log"
	"os"
	"time"
)

// Level est le niveau de sévérité d'une entrée de log.
type Level int

const (
	Info Level = iota
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger préfixe chaque message par son niveau et l'emplacement fourni
// (nom de composant : "merge", "txn:worker-3", etc.).
type Logger struct {
	location string
	std      *log.Logger
}

// New crée un logger écrivant sur os.Stderr, identifié par location.
func New(location string) *Logger {
	return &Logger{location: location, std: log.New(os.Stderr, "", 0)}
}

func (l *Logger) logf(level Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.std.Printf("[%s] [%s] %s", level, l.location, msg)
}

// Infof journalise un message informatif.
func (l *Logger) Infof(format string, args ...any) { l.logf(Info, format, args...) }

// Warnf journalise un avertissement.
func (l *Logger) Warnf(format string, args ...any) { l.logf(Warn, format, args...) }

// Errorf journalise une erreur.
func (l *Logger) Errorf(format string, args ...any) { l.logf(Error, format, args...) }

// Logt journalise un message horodaté, pour les chemins concurrents où
// l'ordre d'interleaving entre threads importe au lecteur (merge worker,
// transaction workers) — l'équivalent de la variante `logt` de
// cowabunga/logger.py.
func (l *Logger) Logt(level Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.std.Printf("[%s] [%s] [%s] %s", level, time.Now().UTC().Format(time.RFC3339Nano), l.location, msg)
}
