/*
Package configuration defines the input configuration for an xapi-db-load run.

A run fabricates a fixed volume of xAPI statements plus companion metadata
(courses, blocks, actors, profiles, taxonomies and tags) and streams it into
one of the supported backends. The main type is Config, loaded from YAML via
viper and validated with Validate() before any task is built.

# Example YAML configuration

	backend: clickhouse
	batchSize: 10000
	numBatches: 10
	numWorkers: 4
	queueCapacity: 20
	numOrganizations: 6
	numActors: 1000
	numActorProfileChanges: 2
	numCoursePublishes: 3
	courseLengthDays: 120
	startDate: 2020-01-01
	endDate: 2022-01-01
	courseSizes:
	  small:
	    courses: 10
	    actors: 100
	    chapters: 4
	    sequences: 10
	    verticals: 20
	    problems: 20
	    videos: 10
	    forumPosts: 20
	clickhouse:
	  host: localhost
	  port: 9000
	  database: xapi
	  username: default
	eventSinkDatabase: event_sink
	staging:
	  location: /var/tmp/xapi-staging
	  loadAfterWrite: true

Every backend identifier accepted by the registry must have its corresponding
connection section populated; Validate reports the first missing piece.

For the lake backend, staging.location must be a listable directory when
running with --load-only, since load-only discovers previously staged files by
walking it.
*/
package configuration
