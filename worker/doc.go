// Package worker converts many resources in parallel with a single
// converter.
//
// BatchConverter handles a known slice of resources and returns results in
// input order. Pool accepts jobs over time:
//
//	pool := worker.NewPool(converter.New(), 4)
//	defer pool.Close()
//
//	for _, resource := range resources {
//	    pool.Submit(worker.Job{Resource: resource, Schema: patientSchema})
//	}
//
//	for result := range pool.Results() {
//	    if result.Error != nil {
//	        // Handle error
//	    }
//	    // Use result.Record
//	}
package worker
