package game

import "TaskForce/internal/core"

const patrolStopEps = 0.5

// updatePatrols advances every living patrol member along its route.
func updatePatrols(w *World, dt float64) {
	w.ForEach([]ComponentKey{CompTransform, CompMovement, CompPatrol}, func(id EntityID) {
		if w.DestroyedData(id) != nil {
			return
		}
		tr := w.Transform(id)
		mov := w.Movement(id)
		patrol := w.Patrol(id)
		if tr == nil || mov == nil || patrol == nil || len(patrol.Waypoints) == 0 {
			return
		}

		if patrol.Index >= len(patrol.Waypoints) {
			if !patrol.Loop {
				tr.Vel = core.Vec2{}
				return
			}
			patrol.Index = 0
		}
		target := patrol.Waypoints[patrol.Index]

		dir := target.Sub(tr.Pos)
		dist := dir.Len()
		if dist <= patrolStopEps || mov.MaxSpeed <= 1e-3 || dist <= mov.MaxSpeed*dt {
			tr.Pos = target
			tr.Vel = core.Vec2{}
			patrol.Index++
			return
		}
		direction := dir.Scale(1.0 / dist)
		tr.Vel = direction.Scale(mov.MaxSpeed)
		tr.Pos = tr.Pos.Add(tr.Vel.Scale(dt))
	})
}
