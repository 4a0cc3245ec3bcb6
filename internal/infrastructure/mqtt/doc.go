// Package mqtt provides the broker connection that carries node I/O
// between the bridge and the flow runtime.
//
// Each node gets an input topic, one output topic per port and a
// retained status topic under the configured prefix (see Topics). The
// bridge itself announces online/offline on <prefix>/status, backed by a
// last will for unexpected disconnects.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllNodeInputs(), 1,
//	    func(topic string, payload []byte) error {
//	        id, _ := client.Topics().ParseNodeInput(topic)
//	        return inject(id, payload)
//	    })
package mqtt
