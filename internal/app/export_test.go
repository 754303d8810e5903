package app

import (
	"github.com/MrWong99/voxgate/internal/recorder"
	"github.com/MrWong99/voxgate/internal/turn"
)

func (a *App) Recorder() *recorder.Recorder { return a.recorder }

func (a *App) Turns() *turn.Orchestrator { return a.turns }
