// Package perf runs surge load tests from Go code.
//
// A test is a stage schedule plus a scenario. The scenario can be written in
// Go:
//
//	sum, err := perf.Run(ctx, perf.Test{
//	    Name: "health",
//	    Stages: []perf.Stage{
//	        {Duration: 30 * time.Second, Target: 500},
//	        {Duration: 90 * time.Second, Target: 500},
//	        {Duration: 20 * time.Second, Target: 0},
//	    },
//	    Scenario: perf.ScenarioFunc(func(ctx context.Context, it *perf.Iteration) error {
//	        resp, err := it.Get(ctx, "http://localhost:8080/health")
//	        if err != nil {
//	            return err
//	        }
//	        it.Check("status was 200", resp.StatusCode == 200)
//	        it.Pause(time.Second)
//	        return nil
//	    }),
//	})
//
// or loaded from a YAML or JSON file:
//
//	cfg, _ := perf.LoadConfig("test.yaml")
//	sum, err := perf.RunConfig(ctx, cfg, nil)
//
// Cancelling ctx stops the schedule early; in-flight iterations get the
// graceful stop period to finish and the summary is marked interrupted.
package perf
