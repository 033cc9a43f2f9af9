// Package hub talks to the home-automation hub.
//
// The hub exposes a JSON API over HTTP GET. A session starts with an
// object model request, which returns an ajax session id and the device
// and service catalogue. Events are received by long polling; actions are
// method calls on service ids.
//
//	GET /json/?action=getObjectModelAndAjaxSessionId
//	GET /json/?action=waitForEvents&ajaxSessionId=<id>
//	GET /json/?event=objectmodel.MethodCall&arg[]=<svc>&arg[]=<method>&arg[]=<value>&ajaxSessionId=<id>&action=sendEvent
//
// Client implements Adapter against that API. Poller is the hub worker: it
// long-polls in a loop, decodes fan, flap and window changes, and queues
// status events for the bus worker.
package hub
