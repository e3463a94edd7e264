package api

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the /api routes on r.
func RegisterRoutes(r chi.Router, jobs *JobHandler, planning *PlanningHandler) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/task-pipeline", jobs.CreateTaskPipelineJob)
			r.Post("/run-next", jobs.RunNextJob)
			r.Get("/{id}", jobs.GetJob)
			r.Post("/{id}/cancel", jobs.CancelJob)
		})

		r.Route("/projects/{id}", func(r chi.Router) {
			r.Get("/jobs", jobs.ListProjectJobs)
			r.Get("/planning-units/order", planning.OrderPlanningUnits)
			r.Post("/planning-units/dependencies", planning.DeriveUnitDependencies)
		})

		r.Route("/sprints/{id}/work-items", func(r chi.Router) {
			r.Get("/", planning.ListWorkItems)
			r.Get("/order", planning.OrderWorkItems)
			r.Post("/draft", planning.GenerateDraft)
			r.Post("/refine", planning.Refine)
			r.Post("/split", planning.Split)
		})

		r.Patch("/work-items/{id}/status", planning.ChangeWorkItemStatus)
	})
}
